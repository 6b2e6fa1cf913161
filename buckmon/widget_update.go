package main

import (
	"fmt"
	"strings"

	"github.com/itohio/gobuck/pkg/monitor"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// updateStatus refreshes the status line and run buttons from the latest
// stats. Must run on the main thread.
func updateStatus(state *appState, stats monitor.Stats) {
	connected := state.source != nil && state.source.IsConnected()
	state.statusLabel.SetText(statusText(stats, connected))
	if stats.Records > 0 && stats.Running != state.running {
		state.running = stats.Running
		updateRunButtons(state)
	}
}

// statusText renders the monitor stats as a one-line summary.
func statusText(stats monitor.Stats, connected bool) string {
	if !connected && stats.Records == 0 {
		return "Disconnected"
	}
	if stats.Records == 0 {
		return "Waiting for telemetry"
	}

	var b strings.Builder
	if stats.Running {
		b.WriteString("Running")
	} else {
		b.WriteString("Idle")
	}
	fmt.Fprintf(&b, " | set %sV out %sV load %smA",
		tenths(stats.Setpoint), tenths(stats.Output), tenths(stats.Current))
	fmt.Fprintf(&b, " | clock %s", stats.Clock)
	if stats.ClockStale {
		b.WriteString(" (stale)")
	}
	fmt.Fprintf(&b, " | %d records", stats.Records)
	if !connected {
		b.WriteString(" | disconnected")
	}
	return b.String()
}

func tenths(v float32) string {
	return string(telemetry.AppendTenths(nil, v))
}
