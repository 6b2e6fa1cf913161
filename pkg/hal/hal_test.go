package hal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlant() *Plant {
	cfg := config.Default()
	cfg.Plant.NoiseLevel = 0
	return NewPlant(cfg.Plant, cfg.Signal, 50*time.Microsecond)
}

func TestBCD(t *testing.T) {
	tests := []struct {
		dec uint8
		bcd uint8
	}{
		{0, 0x00},
		{9, 0x09},
		{10, 0x10},
		{23, 0x23},
		{59, 0x59},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bcd, DecimalToBCD(tt.dec))
		assert.Equal(t, tt.dec, BCDToDecimal(tt.bcd))
	}
}

func TestPlant_SettlesToDutyTimesVin(t *testing.T) {
	p := newTestPlant()
	ctx := context.Background()

	p.SetDuty(p.Top() / 2)
	assert.InDelta(t, 0.5, float64(p.Duty()), 1e-6)

	// 10 time constants of 2ms at 50us per tick.
	for i := 0; i < 400; i++ {
		require.NoError(t, p.WaitConversion(ctx, time.Millisecond))
	}

	assert.InDelta(t, 6.0, float64(p.OutputVoltage()), 0.01)
	assert.Equal(t, uint64(400), p.Ticks())

	vout := float32(p.Read(signal.OutputVoltage)) * 0.006
	assert.InDelta(t, 6.0, float64(vout), 0.01)
	iload := float32(p.Read(signal.LoadCurrent)) * 0.63
	assert.InDelta(t, 120.0, float64(iload), 1.0)
	vin := float32(p.Read(signal.InputVoltage)) * 0.0045
	assert.InDelta(t, 12.0, float64(vin), 0.01)
	ref := float32(p.Read(signal.SetpointRef)) / 4095 * 10
	assert.InDelta(t, 5.0, float64(ref), 0.01)
}

func TestPlant_DutyIsClipped(t *testing.T) {
	p := newTestPlant()
	p.SetDuty(p.Top() * 3)
	assert.Equal(t, float32(1), p.Duty())
}

func TestPlant_AcknowledgeCycle(t *testing.T) {
	p := newTestPlant()
	assert.True(t, p.Acknowledged())

	require.NoError(t, p.WaitConversion(context.Background(), time.Millisecond))
	assert.False(t, p.Acknowledged())

	p.Acknowledge()
	assert.True(t, p.Acknowledged())
}

func TestPlant_StalledTimesOut(t *testing.T) {
	p := newTestPlant()
	p.SetStalled(true)

	err := p.WaitConversion(context.Background(), 2*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(0), p.Ticks())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.WaitConversion(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	p.SetStalled(false)
	assert.NoError(t, p.WaitConversion(context.Background(), time.Millisecond))
}

func TestPlant_SetpointAndInput(t *testing.T) {
	p := newTestPlant()
	p.SetSetpoint(2.5)
	p.SetInputVoltage(9)
	require.NoError(t, p.WaitConversion(context.Background(), time.Millisecond))

	assert.InDelta(t, 1024, float64(p.Read(signal.SetpointRef)), 1)
	assert.InDelta(t, 2000, float64(p.Read(signal.InputVoltage)), 1)
}

func TestSimButtons_Momentary(t *testing.T) {
	var b SimButtons
	assert.False(t, b.Start())

	b.PressStart()
	assert.True(t, b.Start())
	assert.False(t, b.Start())

	b.PressStop()
	assert.True(t, b.Stop())
	assert.False(t, b.Stop())
}

func TestSimIndicators(t *testing.T) {
	var i SimIndicators
	i.SetControl(true)
	assert.True(t, i.Control())
	assert.False(t, i.Telemetry())
	i.SetTelemetry(true)
	i.SetControl(false)
	assert.False(t, i.Control())
	assert.True(t, i.Telemetry())
}

func TestSimRTC_ReadTime(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rtc := NewSimRTCWithClock(func() time.Time { return now })
	require.NoError(t, rtc.Init())

	h, m, s, err := rtc.ReadTime()
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{h, m, s})

	now = now.Add(1*time.Hour + 23*time.Minute + 45*time.Second)
	h, m, s, err = rtc.ReadTime()
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{0x01, 0x23, 0x45}, [3]uint8{h, m, s})
}

func TestSimRTC_FailureInjection(t *testing.T) {
	rtc := NewSimRTC()
	rtc.FailEvery = 3
	require.NoError(t, rtc.Init())

	var failures int
	for i := 0; i < 9; i++ {
		if _, _, _, err := rtc.ReadTime(); err != nil {
			assert.ErrorIs(t, err, ErrTimeout)
			failures++
		}
	}
	assert.Equal(t, 3, failures)
}

func TestSimRTC_InitError(t *testing.T) {
	rtc := NewSimRTC()
	rtc.InitErr = errors.New("bus stuck")
	assert.Error(t, rtc.Init())
}

func TestSoftWatchdog(t *testing.T) {
	w := NewSoftWatchdog(20 * time.Millisecond)
	assert.False(t, w.Expired())
	assert.Equal(t, uint64(1), w.Services())

	time.Sleep(40 * time.Millisecond)
	assert.True(t, w.Expired())

	w.Service()
	assert.False(t, w.Expired())
	assert.Equal(t, uint64(2), w.Services())
}

func TestSoftWatchdog_Watch(t *testing.T) {
	w := NewSoftWatchdog(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var expired atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Watch(ctx, func(time.Duration) { expired.Add(1) })
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	// Never serviced: expires exactly once.
	assert.Equal(t, int32(1), expired.Load())
}

func TestWriterSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSender(&buf)

	require.NoError(t, s.SendLine([]byte("OFF,00:00:00")))
	require.NoError(t, s.SendLine([]byte("5.0,4.9,98.0,00:00:04")))

	assert.Equal(t, "OFF,00:00:00\n5.0,4.9,98.0,00:00:04\n", buf.String())
}

func TestSerialSender_NotConnected(t *testing.T) {
	s := NewSerialSender("/dev/does-not-exist", 0)

	assert.False(t, s.IsConnected())
	assert.ErrorIs(t, s.SendLine([]byte("OFF,00:00:00")), ErrNotConnected)
	assert.Error(t, s.Connect())
	assert.NoError(t, s.Close())
}

func TestSimButtons_Listen(t *testing.T) {
	var b SimButtons
	err := b.Listen(strings.NewReader("start\n\nbogus\n"))
	require.NoError(t, err)
	assert.True(t, b.Start())
	assert.False(t, b.Stop())

	require.NoError(t, b.Listen(strings.NewReader("STOP\n")))
	assert.True(t, b.Stop())
}

func TestSerialSender_ReadNotConnected(t *testing.T) {
	s := NewSerialSender("/dev/does-not-exist", 0)
	_, err := s.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrNotConnected)
}
