package core

import (
	"fmt"
	"sync"

	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/signal"
)

// RunState is the converter run/stop state.
type RunState uint8

const (
	Idle RunState = iota
	Running
)

func (r RunState) String() string {
	switch r {
	case Idle:
		return "idle"
	case Running:
		return "running"
	}
	return fmt.Sprintf("runstate(%d)", uint8(r))
}

// ClockSnapshot is the last successfully decoded RTC time.
type ClockSnapshot struct {
	Hours   uint8
	Minutes uint8
	Seconds uint8
}

// Snapshot is a consistent copy of the shared state.
type Snapshot struct {
	Run      RunState
	Setpoint float32 // V
	Output   float32 // V
	Current  float32 // mA
	Input    float32 // V
	Duty     float32
	Clock    ClockSnapshot
	Ticks    uint64

	OutputRaw  uint16
	CurrentRaw uint16
	InputRaw   uint16
}

// State is shared between the sampler and the tasks. Every group of fields
// has one writer:
//   - sampler: run state, measurements, input monitor, setpoint
//   - control task: duty
//   - clock task: clock
//
// One lock guards all of them, so Snapshot never mixes values from different
// sampler ticks.
type State struct {
	mu       sync.RWMutex
	run      RunState
	output   signal.Measurement
	current  signal.Measurement
	input    signal.InputMonitor
	setpoint float32
	duty     float32
	clock    ClockSnapshot
	ticks    uint64
}

// NewState returns the startup state: Idle, zero duty, clock 00:00:00.
func NewState() *State {
	return &State{}
}

// Snapshot copies the state under one read lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Run:        s.run,
		Setpoint:   s.setpoint,
		Output:     s.output.Value,
		Current:    s.current.Value,
		Input:      s.input.Voltage,
		Duty:       s.duty,
		Clock:      s.clock,
		Ticks:      s.ticks,
		OutputRaw:  s.output.Raw,
		CurrentRaw: s.current.Raw,
		InputRaw:   s.input.Raw,
	}
}

// RunState returns the current run state.
func (s *State) RunState() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// Duty returns the last duty fraction written to the PWM.
func (s *State) Duty() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duty
}

// Clock returns the cached RTC time.
func (s *State) Clock() ClockSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// start enters Running. It reports whether the state changed.
func (s *State) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == Running {
		return false
	}
	s.run = Running
	return true
}

// stop zeroes the duty register and enters Idle. It reports whether the
// state changed.
func (s *State) stop(pwm hal.PWM) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pwm.SetDuty(0)
	s.duty = 0
	if s.run == Idle {
		return false
	}
	s.run = Idle
	return true
}

// applyDuty writes duty to the PWM while Running. A stop that raced with the
// controller wins: nothing is written once the state is Idle.
func (s *State) applyDuty(pwm hal.PWM, duty float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != Running {
		return false
	}
	pwm.SetDuty(uint32(duty * float32(pwm.Top())))
	s.duty = duty
	return true
}

func (s *State) clearDuty() {
	s.mu.Lock()
	s.duty = 0
	s.mu.Unlock()
}

func (s *State) setClock(c ClockSnapshot) {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
}

// publish stores the conditioner outputs of one sampler tick.
func (s *State) publish(c *signal.Conditioner) {
	s.mu.Lock()
	s.output = c.Output
	s.current = c.Current
	s.input = c.Input
	s.setpoint = c.Setpoint()
	s.ticks++
	s.mu.Unlock()
}
