package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/controller"
	"github.com/itohio/gobuck/pkg/core"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/signal"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// mockTelemetryPeriod speeds up telemetry so the plot fills quickly.
const mockTelemetryPeriod = 250 * time.Millisecond

// simulator runs a converter in process and streams its telemetry.
type simulator struct {
	*telemetry.Stream

	sched   *core.Scheduler
	buttons *hal.SimButtons
	cancel  context.CancelFunc
	done    chan struct{}
}

var (
	_ telemetry.Source = (*simulator)(nil)
	_ commander        = (*simulator)(nil)
)

func newSimulator(cfg *config.Config) (*simulator, error) {
	c := *cfg
	c.Tasks.Telemetry.Period = mockTelemetryPeriod

	cond, err := signal.NewConditioner(c.Signal)
	if err != nil {
		return nil, fmt.Errorf("failed to create signal conditioner: %w", err)
	}
	ctrl, err := controller.FromConfig(c.Controller, c.Signal)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	plant := hal.NewPlant(c.Plant, c.Signal, c.Core.TickPeriod)
	rtc := hal.NewSimRTC()
	rtc.FailEvery = c.Plant.RTCFailEvery
	buttons := &hal.SimButtons{}
	pr, pw := io.Pipe()

	sched, err := core.New(&c, cond, ctrl, core.Peripherals{
		ADC:        plant,
		PWM:        plant,
		Buttons:    buttons,
		Indicators: &hal.SimIndicators{},
		RTC:        rtc,
		Sender:     hal.NewWriterSender(pw),
		Watchdog:   hal.NewSoftWatchdog(c.Core.WatchdogTimeout),
	}, core.NopRecorder{})
	if err != nil {
		return nil, err
	}

	return &simulator{
		Stream:  telemetry.NewStream(pr, telemetry.DefaultBufferSize),
		sched:   sched,
		buttons: buttons,
	}, nil
}

// Connect starts the converter and the telemetry reader.
func (s *simulator) Connect() error {
	if err := s.Stream.Connect(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.sched.Run(ctx); err != nil {
			log.Printf("Simulated converter stopped: %v", err)
		}
	}()
	return nil
}

// Close stops the reader first so a pending telemetry write fails instead
// of blocking the scheduler shutdown.
func (s *simulator) Close() error {
	err := s.Stream.Close()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return err
}

// SendCommand presses the simulated buttons.
func (s *simulator) SendCommand(cmd telemetry.Command) error {
	switch cmd {
	case telemetry.CommandStart:
		s.buttons.PressStart()
	case telemetry.CommandStop:
		s.buttons.PressStop()
	default:
		return fmt.Errorf("%w: %s", telemetry.ErrUnknownCommand, cmd)
	}
	return nil
}
