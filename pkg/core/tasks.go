package core

import (
	"fmt"
	"sync/atomic"

	"github.com/itohio/gobuck/pkg/controller"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// ControlTask runs the controller and owns the duty output.
type ControlTask struct {
	state *State
	ctrl  *controller.Controller
	pwm   hal.PWM
	leds  hal.Indicators
	rec   Recorder

	headroom   float32
	needsReset bool
	resets     atomic.Uint64
}

// NewControlTask creates the control task. Control runs only while the
// setpoint is below headroom*Vin. rec may be nil.
func NewControlTask(state *State, ctrl *controller.Controller, pwm hal.PWM, leds hal.Indicators, headroom float32, rec Recorder) *ControlTask {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &ControlTask{
		state:      state,
		ctrl:       ctrl,
		pwm:        pwm,
		leds:       leds,
		rec:        rec,
		headroom:   headroom,
		needsReset: true,
	}
}

// Resets returns how many times the controller was reset.
func (t *ControlTask) Resets() uint64 {
	return t.resets.Load()
}

// Step computes and applies one duty cycle while Running. The first step
// after entering Idle resets the controller; every Idle step keeps the duty
// output at zero.
func (t *ControlTask) Step() error {
	snap := t.state.Snapshot()

	if snap.Run != Running {
		if t.needsReset {
			t.ctrl.Reset()
			t.needsReset = false
			t.resets.Add(1)
			t.rec.ObserveControllerReset()
		}
		t.state.clearDuty()
		return nil
	}

	t.needsReset = true
	t.leds.SetControl(true)

	if snap.Setpoint >= t.headroom*snap.Input {
		return nil
	}

	duty := controller.Clamp(t.ctrl.Compute(snap.Setpoint, snap.Output, snap.Current))
	if t.state.applyDuty(t.pwm, duty) {
		t.rec.ObserveDuty(duty)
	}
	return nil
}

// TelemetryTask reports the converter state over the telemetry link.
type TelemetryTask struct {
	state  *State
	sender hal.LineSender
	leds   hal.Indicators
	rec    Recorder
}

// NewTelemetryTask creates the telemetry task. rec may be nil.
func NewTelemetryTask(state *State, sender hal.LineSender, leds hal.Indicators, rec Recorder) *TelemetryTask {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &TelemetryTask{state: state, sender: sender, leds: leds, rec: rec}
}

// Record builds the telemetry record of the current state.
func (t *TelemetryTask) Record() telemetry.Record {
	snap := t.state.Snapshot()
	return telemetry.Record{
		Running:  snap.Run == Running,
		Setpoint: snap.Setpoint,
		Output:   snap.Output,
		Current:  snap.Current,
		Clock:    telemetry.Clock(snap.Clock),
	}
}

// Step formats and sends one line.
func (t *TelemetryTask) Step() error {
	r := t.Record()
	t.leds.SetTelemetry(r.Running)

	err := t.sender.SendLine(telemetry.Format(r))
	t.rec.ObserveTelemetry(err)
	if err != nil {
		return fmt.Errorf("failed to send telemetry: %w", err)
	}
	return nil
}

// ClockTask refreshes the cached time from the RTC.
type ClockTask struct {
	state *State
	rtc   hal.RTC
	rec   Recorder

	failures atomic.Uint64
}

// NewClockTask creates the clock task. rec may be nil.
func NewClockTask(state *State, rtc hal.RTC, rec Recorder) *ClockTask {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &ClockTask{state: state, rtc: rtc, rec: rec}
}

// Failures returns the number of failed RTC reads.
func (t *ClockTask) Failures() uint64 {
	return t.failures.Load()
}

// Step reads and decodes the RTC. On failure the cached time is left stale.
func (t *ClockTask) Step() error {
	h, m, s, err := t.rtc.ReadTime()
	if err != nil {
		t.failures.Add(1)
		t.rec.ObserveClockFailure()
		return fmt.Errorf("failed to read RTC: %w", err)
	}

	t.state.setClock(ClockSnapshot{
		Hours:   hal.BCDToDecimal(h),
		Minutes: hal.BCDToDecimal(m),
		Seconds: hal.BCDToDecimal(s),
	})
	return nil
}
