package hal

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/signal"
)

// DefaultPWMTop is the simulated PWM period in counts.
const DefaultPWMTop = 1000

// Plant simulates a buck converter power stage together with its ADC and
// PWM peripherals. Every completed conversion advances the simulation by one
// switching period.
type Plant struct {
	cfg    config.PlantConfig
	signal config.SignalConfig
	dt     float32

	mu       sync.Mutex
	rng      *rand.Rand
	top      uint32
	duty     float32
	vin      float32
	vout     float32
	setpoint float32
	latched  [4]uint16
	stalled  bool
	acked    bool
	ticks    uint64
}

// NewPlant creates a simulated plant. tick is the simulated time advanced per
// conversion.
func NewPlant(cfg config.PlantConfig, sig config.SignalConfig, tick time.Duration) *Plant {
	return &Plant{
		cfg:      cfg,
		signal:   sig,
		dt:       float32(tick.Seconds()),
		rng:      rand.New(rand.NewSource(1)),
		top:      DefaultPWMTop,
		vin:      cfg.InputVoltage,
		setpoint: cfg.Setpoint,
		acked:    true,
	}
}

// Top returns the PWM period in counts.
func (p *Plant) Top() uint32 {
	return p.top
}

// SetDuty sets the PWM compare value.
func (p *Plant) SetDuty(counts uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if counts > p.top {
		counts = p.top
	}
	p.duty = float32(counts) / float32(p.top)
}

// Duty returns the applied duty fraction.
func (p *Plant) Duty() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// OutputVoltage returns the simulated output voltage.
func (p *Plant) OutputVoltage() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vout
}

// SetInputVoltage changes the simulated input rail.
func (p *Plant) SetInputVoltage(v float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vin = v
}

// SetSetpoint moves the simulated reference knob (V).
func (p *Plant) SetSetpoint(v float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setpoint = v
}

// SetStalled makes every following conversion time out.
func (p *Plant) SetStalled(stalled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = stalled
}

// Ticks returns the number of completed conversions.
func (p *Plant) Ticks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// WaitConversion advances the plant by one switching period and latches the
// ADC results.
func (p *Plant) WaitConversion(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	stalled := p.stalled
	p.mu.Unlock()

	if stalled {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrTimeout
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.step()
	p.acked = false
	return nil
}

// Read returns the latched code of ch.
func (p *Plant) Read(ch signal.Channel) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(ch) >= len(p.latched) {
		panic("hal: unknown ADC channel " + ch.String())
	}
	return p.latched[ch]
}

// Acknowledge re-arms the conversion interrupt.
func (p *Plant) Acknowledge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acked = true
}

// Acknowledged reports whether the last conversion was acknowledged.
func (p *Plant) Acknowledged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acked
}

// step integrates the output filter: a first order lag towards duty*Vin.
func (p *Plant) step() {
	tau := float32(p.cfg.TimeConstant.Seconds())
	alpha := float32(1)
	if tau > 0 && p.dt < tau {
		alpha = p.dt / tau
	}
	p.vout += alpha * (p.duty*p.vin - p.vout)

	currentMA := float32(0)
	if p.cfg.LoadOhms > 0 {
		currentMA = p.vout / p.cfg.LoadOhms * 1000
	}

	p.latched[signal.SetpointRef] = p.code(p.setpoint / p.signal.MaxVoltage * p.signal.MaxADC)
	p.latched[signal.InputVoltage] = p.code(p.vin / p.signal.InputGain)
	p.latched[signal.OutputVoltage] = p.code(p.vout / p.signal.VoltageGain)
	p.latched[signal.LoadCurrent] = p.code(currentMA / p.signal.CurrentGain)
	p.ticks++
}

// code adds noise and converts to a 12-bit ADC code.
func (p *Plant) code(v float32) uint16 {
	if p.cfg.NoiseLevel > 0 {
		v += (p.rng.Float32()*2 - 1) * p.cfg.NoiseLevel
	}
	if v < 0 {
		return 0
	}
	if v > p.signal.MaxADC {
		v = p.signal.MaxADC
	}
	return uint16(v + 0.5)
}
