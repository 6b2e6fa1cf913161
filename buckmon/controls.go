package main

import (
	"fmt"

	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// handleCommand sends a START or STOP line to the converter.
func handleCommand(state *appState, cmd telemetry.Command) {
	if state.commander == nil || !state.commander.IsConnected() {
		return
	}

	if err := state.commander.SendCommand(cmd); err != nil {
		dialog.ShowError(fmt.Errorf("failed to send %s: %w", cmd, err), state.window)
		return
	}

	// Optimistic update; the next telemetry line confirms it.
	state.running = cmd == telemetry.CommandStart
	updateRunButtons(state)
}

// updateRunButtons highlights the button matching the converter state.
func updateRunButtons(state *appState) {
	updateRunButton(state.startBtn, state.running)
	updateRunButton(state.stopBtn, !state.running)
}

func updateRunButton(btn *widget.Button, active bool) {
	if active {
		btn.Importance = widget.HighImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}
