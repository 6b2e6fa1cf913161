package signal

import (
	"fmt"

	"github.com/itohio/gobuck/pkg/config"
)

// Conditioner owns every measurement model of the converter and the
// reference filter. It is not safe for concurrent use: a single sampler
// goroutine drives it and publishes copies.
type Conditioner struct {
	Output  Measurement
	Current Measurement
	Input   InputMonitor
	Filter  *ReferenceFilter

	maxADC       float32
	maxVoltage   float32
	ceilingRatio float32
}

// NewConditioner builds a conditioner from signal configuration.
func NewConditioner(cfg config.SignalConfig) (*Conditioner, error) {
	outCoupling, err := ParseCoupling(cfg.OutputCoupling)
	if err != nil {
		return nil, fmt.Errorf("output voltage: %w", err)
	}
	curCoupling, err := ParseCoupling(cfg.CurrentCoupling)
	if err != nil {
		return nil, fmt.Errorf("load current: %w", err)
	}
	if cfg.FilterSize <= 0 {
		return nil, fmt.Errorf("invalid filter size %d", cfg.FilterSize)
	}

	return &Conditioner{
		Output:       NewMeasurement(outCoupling, cfg.VoltageGain, cfg.DCPeriodSamples),
		Current:      NewMeasurement(curCoupling, cfg.CurrentGain, cfg.DCPeriodSamples),
		Input:        InputMonitor{Gain: cfg.InputGain},
		Filter:       NewReferenceFilter(cfg.FilterSize),
		maxADC:       cfg.MaxADC,
		maxVoltage:   cfg.MaxVoltage,
		ceilingRatio: cfg.CeilingRatio,
	}, nil
}

// Update feeds raw into the model for channel and returns the engineering
// value. SetpointRef pushes into the reference filter and returns the new
// setpoint. An unknown channel is a programming error.
func (c *Conditioner) Update(channel Channel, raw uint16) float32 {
	switch channel {
	case OutputVoltage:
		return c.Output.Update(raw)
	case LoadCurrent:
		return c.Current.Update(raw)
	case InputVoltage:
		return c.Input.Update(raw)
	case SetpointRef:
		return c.Filter.Push(c.SetpointContribution(raw))
	}
	panic(fmt.Sprintf("signal: unknown channel %d", uint8(channel)))
}

// SetpointContribution scales a reference code into one filter slot.
func (c *Conditioner) SetpointContribution(raw uint16) float32 {
	return (float32(raw) / c.maxADC) * c.maxVoltage / float32(c.Filter.Size())
}

// ApplyCeiling clamps the filter against the latest input voltage.
func (c *Conditioner) ApplyCeiling() bool {
	return c.Filter.ApplyCeiling(c.Input.Voltage, c.ceilingRatio)
}

// Setpoint returns the filtered setpoint.
func (c *Conditioner) Setpoint() float32 {
	return c.Filter.Setpoint()
}
