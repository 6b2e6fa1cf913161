package hal

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gobuck/pkg/telemetry"
)

// SimButtons are momentary push buttons: a press is reported by exactly one
// read.
type SimButtons struct {
	start atomic.Bool
	stop  atomic.Bool
}

// PressStart latches a start press.
func (b *SimButtons) PressStart() {
	b.start.Store(true)
}

// PressStop latches a stop press.
func (b *SimButtons) PressStop() {
	b.stop.Store(true)
}

// Start reports and clears a pending start press.
func (b *SimButtons) Start() bool {
	return b.start.Swap(false)
}

// Stop reports and clears a pending stop press.
func (b *SimButtons) Stop() bool {
	return b.stop.Swap(false)
}

// Listen presses the buttons for START and STOP command lines read from r
// until r ends. Other lines are logged and ignored.
func (b *SimButtons) Listen(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, err := telemetry.ParseCommand(line)
		if err != nil {
			log.Printf("Ignoring command: %v", err)
			continue
		}
		switch cmd {
		case telemetry.CommandStart:
			b.PressStart()
		case telemetry.CommandStop:
			b.PressStop()
		}
	}
	return scanner.Err()
}

// SimIndicators records LED states.
type SimIndicators struct {
	control   atomic.Bool
	telemetry atomic.Bool
}

func (i *SimIndicators) SetControl(on bool)   { i.control.Store(on) }
func (i *SimIndicators) SetTelemetry(on bool) { i.telemetry.Store(on) }
func (i *SimIndicators) Control() bool        { return i.control.Load() }
func (i *SimIndicators) Telemetry() bool      { return i.telemetry.Load() }

// SimRTC is a real-time clock that counts from Init. Time is reported in BCD
// like a DS3231.
type SimRTC struct {
	// FailEvery makes every Nth ReadTime fail with ErrTimeout (0 = never).
	FailEvery int
	// InitErr is returned by Init when set.
	InitErr error

	mu    sync.Mutex
	now   func() time.Time
	zero  time.Time
	reads int
}

// NewSimRTC creates a clock using the wall clock.
func NewSimRTC() *SimRTC {
	return &SimRTC{now: time.Now}
}

// NewSimRTCWithClock creates a clock with a custom time source.
func NewSimRTCWithClock(now func() time.Time) *SimRTC {
	return &SimRTC{now: now}
}

// Init clears the oscillator-stop flag and sets the time to 00:00:00.
func (r *SimRTC) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.InitErr != nil {
		return r.InitErr
	}
	r.zero = r.now()
	r.reads = 0
	return nil
}

// ReadTime returns the time since Init as BCD hours, minutes and seconds.
func (r *SimRTC) ReadTime() (hours, minutes, seconds uint8, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reads++
	if r.FailEvery > 0 && r.reads%r.FailEvery == 0 {
		return 0, 0, 0, ErrTimeout
	}

	elapsed := int64(r.now().Sub(r.zero) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	s := uint8(elapsed % 60)
	m := uint8(elapsed / 60 % 60)
	h := uint8(elapsed / 3600 % 24)
	return DecimalToBCD(h), DecimalToBCD(m), DecimalToBCD(s), nil
}

// SoftWatchdog is a software stand-in for the hardware watchdog. Expired
// reports whether the deadline passed without service.
type SoftWatchdog struct {
	timeout time.Duration
	last    atomic.Int64
	count   atomic.Uint64
	now     func() time.Time
}

// NewSoftWatchdog creates a watchdog with the given deadline, serviced now.
func NewSoftWatchdog(timeout time.Duration) *SoftWatchdog {
	w := &SoftWatchdog{timeout: timeout, now: time.Now}
	w.Service()
	return w
}

// Service pets the watchdog.
func (w *SoftWatchdog) Service() {
	w.last.Store(w.now().UnixNano())
	w.count.Add(1)
}

// Services returns how many times the watchdog was serviced.
func (w *SoftWatchdog) Services() uint64 {
	return w.count.Load()
}

// Since returns the time since the last service.
func (w *SoftWatchdog) Since() time.Duration {
	return w.now().Sub(time.Unix(0, w.last.Load()))
}

// Expired reports whether the deadline passed.
func (w *SoftWatchdog) Expired() bool {
	return w.Since() > w.timeout
}

// Timeout returns the configured deadline.
func (w *SoftWatchdog) Timeout() time.Duration {
	return w.timeout
}

// Watch polls the deadline until ctx is done. onExpire is called once each
// time the watchdog goes from serviced to expired.
func (w *SoftWatchdog) Watch(ctx context.Context, onExpire func(since time.Duration)) {
	interval := w.timeout / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fired := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.Expired() {
				fired = false
				continue
			}
			if !fired {
				fired = true
				onExpire(w.Since())
			}
		}
	}
}
