package hal

import (
	"context"
	"errors"
	"time"

	"github.com/itohio/gobuck/pkg/signal"
)

var (
	ErrTimeout      = errors.New("timeout")
	ErrNotConnected = errors.New("not connected")
)

// ADC samples every channel on one hardware trigger.
type ADC interface {
	// WaitConversion blocks until the current conversion group completes,
	// the timeout elapses (ErrTimeout) or ctx is done.
	WaitConversion(ctx context.Context, timeout time.Duration) error
	Read(ch signal.Channel) uint16
	// Acknowledge re-arms the conversion-complete interrupt.
	Acknowledge()
}

// PWM drives the high-side switch.
type PWM interface {
	Top() uint32
	SetDuty(counts uint32)
}

// Buttons reports the debounced run/stop inputs (true = pressed).
type Buttons interface {
	Start() bool
	Stop() bool
}

// Indicators are the status LEDs.
type Indicators interface {
	SetControl(on bool)
	SetTelemetry(on bool)
}

// RTC is the real-time clock. Fields are BCD encoded.
type RTC interface {
	Init() error
	ReadTime() (hours, minutes, seconds uint8, err error)
}

// LineSender transmits one telemetry line.
type LineSender interface {
	SendLine(line []byte) error
}

// Watchdog resets the system unless serviced in time.
type Watchdog interface {
	Service()
}

// Ensure simulated peripherals implement the interfaces.
var (
	_ ADC        = (*Plant)(nil)
	_ PWM        = (*Plant)(nil)
	_ Buttons    = (*SimButtons)(nil)
	_ Indicators = (*SimIndicators)(nil)
	_ RTC        = (*SimRTC)(nil)
	_ LineSender = (*WriterSender)(nil)
	_ Watchdog   = (*SoftWatchdog)(nil)
)

// BCDToDecimal decodes one packed BCD byte.
func BCDToDecimal(bcd uint8) uint8 {
	return (bcd>>4)*10 + bcd&0x0F
}

// DecimalToBCD encodes 0..99 as packed BCD.
func DecimalToBCD(v uint8) uint8 {
	return (v/10)<<4 | v%10
}
