// Package core runs the converter: a sampler driven by the ADC conversion
// trigger and three periodic tasks (control, telemetry, clock) sharing State.
package core

import (
	"errors"
	"fmt"

	"github.com/itohio/gobuck/pkg/hal"
)

var (
	// ErrConversionTimeout is returned by Sampler.Tick when the ADC did not
	// complete a conversion in time.
	ErrConversionTimeout = errors.New("ADC conversion timeout")
	// ErrClockInit is returned by Scheduler.Run when the RTC cannot be
	// initialized. It is fatal.
	ErrClockInit = errors.New("RTC initialization failed")
)

// Peripherals are the hardware collaborators of the core.
type Peripherals struct {
	ADC        hal.ADC
	PWM        hal.PWM
	Buttons    hal.Buttons
	Indicators hal.Indicators
	RTC        hal.RTC
	Sender     hal.LineSender
	Watchdog   hal.Watchdog
}

func (p Peripherals) validate() error {
	switch {
	case p.ADC == nil:
		return fmt.Errorf("missing ADC")
	case p.PWM == nil:
		return fmt.Errorf("missing PWM")
	case p.Buttons == nil:
		return fmt.Errorf("missing buttons")
	case p.Indicators == nil:
		return fmt.Errorf("missing indicators")
	case p.RTC == nil:
		return fmt.Errorf("missing RTC")
	case p.Sender == nil:
		return fmt.Errorf("missing telemetry sender")
	case p.Watchdog == nil:
		return fmt.Errorf("missing watchdog")
	}
	return nil
}

// Recorder observes core events. Implementations must be cheap: the sampler
// calls ObserveSample on every tick.
type Recorder interface {
	ObserveSample(s Snapshot)
	ObserveCeiling()
	ObserveConversionFault()
	ObserveRunState(r RunState)
	ObserveDuty(duty float32)
	ObserveControllerReset()
	ObserveClockFailure()
	ObserveTelemetry(err error)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) ObserveSample(Snapshot)   {}
func (NopRecorder) ObserveCeiling()          {}
func (NopRecorder) ObserveConversionFault()  {}
func (NopRecorder) ObserveRunState(RunState) {}
func (NopRecorder) ObserveDuty(float32)      {}
func (NopRecorder) ObserveControllerReset()  {}
func (NopRecorder) ObserveClockFailure()     {}
func (NopRecorder) ObserveTelemetry(error)   {}
