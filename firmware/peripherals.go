//go:build rp2040

package main

import (
	"context"
	"machine"
	"sync/atomic"
	"time"

	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/signal"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// adcGroup converts all four inputs back to back on every tick.
type adcGroup struct {
	inputs [4]machine.ADC
	codes  [4]uint16
}

func newADCGroup() *adcGroup {
	machine.InitADC()
	g := &adcGroup{}
	// Indexed by signal.Channel
	pins := [4]machine.Pin{PIN_SETPOINT, PIN_VIN, PIN_VOUT, PIN_ILOAD}
	for i, pin := range pins {
		g.inputs[i] = machine.ADC{Pin: pin}
		g.inputs[i].Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
	}
	return g
}

func (g *adcGroup) WaitConversion(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	for i := range g.inputs {
		// Get is scaled to 16 bits
		g.codes[i] = g.inputs[i].Get() >> (16 - ADC_RESOLUTION)
	}
	if timeout > 0 && time.Since(start) > timeout {
		return hal.ErrTimeout
	}
	return nil
}

func (g *adcGroup) Read(ch signal.Channel) uint16 {
	if int(ch) >= len(g.codes) {
		panic("unknown ADC channel " + ch.String())
	}
	return g.codes[ch]
}

// Acknowledge is a no-op for polled conversions.
func (g *adcGroup) Acknowledge() {}

// gateDriver drives the high-side switch from one PWM slice.
type gateDriver struct {
	channel uint8
}

func newGateDriver() (*gateDriver, error) {
	if err := pwmGroup.Configure(machine.PWMConfig{Period: uint64(PWM_PERIOD.Nanoseconds())}); err != nil {
		return nil, err
	}
	ch, err := pwmGroup.Channel(PIN_PWM)
	if err != nil {
		return nil, err
	}
	pwmGroup.Set(ch, 0)
	return &gateDriver{channel: ch}, nil
}

func (d *gateDriver) Top() uint32 { return pwmGroup.Top() }

func (d *gateDriver) SetDuty(counts uint32) { pwmGroup.Set(d.channel, counts) }

// panel combines the push buttons with START/STOP lines received on the
// telemetry UART.
type panel struct {
	remoteStart atomic.Bool
	remoteStop  atomic.Bool
}

func newPanel() *panel {
	PIN_START.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_STOP.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return &panel{}
}

func (p *panel) Start() bool {
	remote := p.remoteStart.Swap(false)
	return !PIN_START.Get() || remote
}

func (p *panel) Stop() bool {
	remote := p.remoteStop.Swap(false)
	return !PIN_STOP.Get() || remote
}

// pollCommands reads command lines from the UART. Overlong lines are
// dropped up to the next newline.
func (p *panel) pollCommands() {
	var (
		buf      [16]byte
		pos      int
		overflow bool
	)
	for {
		for uart.Buffered() > 0 {
			data, err := uart.ReadByte()
			if err != nil {
				break
			}
			if data == '\n' || data == '\r' {
				if pos > 0 && !overflow {
					p.handle(string(buf[:pos]))
				}
				pos = 0
				overflow = false
				continue
			}
			if pos == len(buf) {
				overflow = true
				continue
			}
			buf[pos] = data
			pos++
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *panel) handle(line string) {
	cmd, err := telemetry.ParseCommand(line)
	if err != nil {
		println("ignoring command:", line)
		return
	}
	switch cmd {
	case telemetry.CommandStart:
		p.remoteStart.Store(true)
	case telemetry.CommandStop:
		p.remoteStop.Store(true)
	}
}

type leds struct{}

func newLEDs() leds {
	PIN_LED_CONTROL.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED_TELEMETRY.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED_CONTROL.Low()
	PIN_LED_TELEMETRY.Low()
	return leds{}
}

func (leds) SetControl(on bool)   { PIN_LED_CONTROL.Set(on) }
func (leds) SetTelemetry(on bool) { PIN_LED_TELEMETRY.Set(on) }

func configureI2C() error {
	return i2c.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_SDA,
		SCL:       PIN_SCL,
	})
}

// watchdog arms the hardware watchdog on the first Service call.
type watchdog struct {
	timeout time.Duration
	armed   atomic.Bool
}

func (w *watchdog) Service() {
	if w.armed.CompareAndSwap(false, true) {
		machine.Watchdog.Configure(machine.WatchdogConfig{
			TimeoutMillis: uint32(w.timeout.Milliseconds()),
		})
		machine.Watchdog.Start()
	}
	machine.Watchdog.Update()
}

func configureUART() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
		TX:       PIN_UART_TX,
		RX:       PIN_UART_RX,
	})
}
