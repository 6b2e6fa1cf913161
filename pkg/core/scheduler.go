package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/controller"
	"github.com/itohio/gobuck/pkg/signal"
)

// Scheduler owns the sampler and the periodic tasks. Go does not prioritize
// goroutines; the nominal order is sampler > control > telemetry = clock.
type Scheduler struct {
	tasks config.TasksConfig
	p     Peripherals

	state     *State
	sampler   *Sampler
	control   *ControlTask
	telemetry *TelemetryTask
	clock     *ClockTask
}

// New wires the core. rec may be nil.
func New(cfg *config.Config, cond *signal.Conditioner, ctrl *controller.Controller, p Peripherals, rec Recorder) (*Scheduler, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if cond == nil || ctrl == nil {
		return nil, fmt.Errorf("missing conditioner or controller")
	}
	if rec == nil {
		rec = NopRecorder{}
	}

	state := NewState()
	return &Scheduler{
		tasks:     cfg.Tasks,
		p:         p,
		state:     state,
		sampler:   NewSampler(cfg.Core, state, cond, p, rec),
		control:   NewControlTask(state, ctrl, p.PWM, p.Indicators, cfg.Core.HeadroomRatio, rec),
		telemetry: NewTelemetryTask(state, p.Sender, p.Indicators, rec),
		clock:     NewClockTask(state, p.RTC, rec),
	}, nil
}

func (s *Scheduler) State() *State             { return s.state }
func (s *Scheduler) Sampler() *Sampler         { return s.sampler }
func (s *Scheduler) Control() *ControlTask     { return s.control }
func (s *Scheduler) Telemetry() *TelemetryTask { return s.telemetry }
func (s *Scheduler) Clock() *ClockTask         { return s.clock }

// Run initializes the RTC and runs the sampler and the tasks until ctx is
// done. An RTC initialization failure is returned as ErrClockInit before
// anything starts. On return the converter is stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.p.RTC.Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrClockInit, err)
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		s.sampler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "control", s.tasks.Control, s.control.Step)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "telemetry", s.tasks.Telemetry, s.telemetry.Step)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, "clock", s.tasks.Clock, s.clock.Step)
	}()
	wg.Wait()

	s.sampler.Stop()
	return nil
}

// loop runs step periodically: startup delay, then period sleep, watchdog
// service, step, trailing sleep. Repeated identical errors are logged once.
func (s *Scheduler) loop(ctx context.Context, name string, cfg config.TaskConfig, step func() error) {
	if !sleep(ctx, cfg.Startup) {
		return
	}

	var lastErr string
	for {
		if !sleep(ctx, cfg.Period) {
			return
		}
		s.p.Watchdog.Service()

		if err := step(); err != nil {
			if msg := err.Error(); msg != lastErr {
				log.Printf("Task %s: %v", name, err)
				lastErr = msg
			}
		} else if lastErr != "" {
			log.Printf("Task %s recovered", name)
			lastErr = ""
		}

		if !sleep(ctx, cfg.Trailing) {
			return
		}
	}
}

// sleep waits for d or ctx. It returns false when ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
