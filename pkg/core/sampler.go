package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/signal"
)

// Sampler is the conversion-complete handler. It is the only writer of the
// measurements, the input monitor, the reference filter and the run state.
type Sampler struct {
	state *State
	cond  *signal.Conditioner
	rec   Recorder

	adc     hal.ADC
	pwm     hal.PWM
	buttons hal.Buttons
	leds    hal.Indicators
	wd      hal.Watchdog

	period    time.Duration
	timeout   time.Duration
	maxFaults int
	faults    atomic.Int64
}

// NewSampler creates a sampler. rec may be nil.
func NewSampler(cfg config.CoreConfig, state *State, cond *signal.Conditioner, p Peripherals, rec Recorder) *Sampler {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Sampler{
		state:     state,
		cond:      cond,
		rec:       rec,
		adc:       p.ADC,
		pwm:       p.PWM,
		buttons:   p.Buttons,
		leds:      p.Indicators,
		wd:        p.Watchdog,
		period:    cfg.TickPeriod,
		timeout:   cfg.ConversionTimeout,
		maxFaults: cfg.MaxConversionFaults,
	}
}

// Faults returns the number of consecutive conversion faults.
func (s *Sampler) Faults() int {
	return int(s.faults.Load())
}

// Tick handles one conversion:
//  1. service the watchdog
//  2. wait for the conversion (bounded)
//  3. apply start/stop buttons
//  4. update output voltage and load current while Running
//  5. update the input monitor
//  6. push the setpoint reference and apply the ceiling
//  7. acknowledge the conversion
//
// A timed out conversion skips steps 3-7 and returns ErrConversionTimeout.
// After MaxConversionFaults consecutive timeouts the converter is stopped. A
// non-positive limit never stops it; config.Load maps 0 to the default, so
// only a negative value disables the limit.
func (s *Sampler) Tick(ctx context.Context) error {
	s.wd.Service()

	if err := s.adc.WaitConversion(ctx, s.timeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		faults := s.faults.Add(1)
		s.rec.ObserveConversionFault()
		if s.maxFaults > 0 && faults >= int64(s.maxFaults) && s.state.RunState() == Running {
			log.Printf("%d consecutive ADC conversion faults, stopping converter", faults)
			s.Stop()
		}
		return fmt.Errorf("%w: %v", ErrConversionTimeout, err)
	}
	s.faults.Store(0)

	if s.buttons.Start() {
		if s.state.start() {
			s.rec.ObserveRunState(Running)
		}
	} else if s.buttons.Stop() {
		s.Stop()
	}

	if s.state.RunState() == Running {
		s.cond.Update(signal.OutputVoltage, s.adc.Read(signal.OutputVoltage))
		s.cond.Update(signal.LoadCurrent, s.adc.Read(signal.LoadCurrent))
	}

	s.cond.Update(signal.InputVoltage, s.adc.Read(signal.InputVoltage))

	s.cond.Update(signal.SetpointRef, s.adc.Read(signal.SetpointRef))
	if s.cond.ApplyCeiling() {
		s.rec.ObserveCeiling()
	}

	s.state.publish(s.cond)
	s.adc.Acknowledge()

	s.rec.ObserveSample(s.state.Snapshot())
	return nil
}

// Stop zeroes the duty register, turns the indicators off and enters Idle.
func (s *Sampler) Stop() {
	changed := s.state.stop(s.pwm)
	s.leds.SetControl(false)
	s.leds.SetTelemetry(false)
	if changed {
		s.rec.ObserveRunState(Idle)
		s.rec.ObserveDuty(0)
	}
}

// Run calls Tick once per tick period until ctx is done. With a zero period
// the ADC wait alone paces the loop.
func (s *Sampler) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.period > 0 {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	faulted := false
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}

		err := s.Tick(ctx)
		switch {
		case err == nil:
			if faulted {
				log.Printf("ADC conversions recovered")
				faulted = false
			}
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrConversionTimeout):
			if !faulted {
				log.Printf("Sampler tick failed: %v", err)
				faulted = true
			}
		default:
			log.Printf("Sampler tick failed: %v", err)
		}
	}
}
