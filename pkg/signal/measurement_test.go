package signal

import (
	"testing"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurement_DCCoupled(t *testing.T) {
	m := NewMeasurement(DCCoupled, 0.006, 4)

	for i := 0; i < 10; i++ {
		v := m.Update(1000)
		assert.InDelta(t, 6.0, float64(v), 1e-5)
		assert.Equal(t, int32(0), m.DCOffset)
	}
	assert.Equal(t, uint16(1000), m.Raw)
}

func TestMeasurement_ACCoupledOffset(t *testing.T) {
	m := NewMeasurement(ACCoupled, 1.0, 4)

	// First period: no offset known yet.
	raws := []uint16{100, 200, 300}
	for _, raw := range raws {
		assert.Equal(t, float32(raw), m.Update(raw))
	}

	// Fourth sample completes the period: offset = (100+200+300+400)/4.
	v := m.Update(400)
	assert.Equal(t, int32(250), m.DCOffset)
	assert.Equal(t, float32(150), v)

	// Offset holds during the next period.
	assert.Equal(t, float32(-150), m.Update(100))
	assert.Equal(t, int32(250), m.DCOffset)
}

func TestMeasurement_ACCoupledRecomputes(t *testing.T) {
	m := NewMeasurement(ACCoupled, 0.5, 3)

	for i := 0; i < 3; i++ {
		m.Update(600)
	}
	assert.Equal(t, int32(600), m.DCOffset)

	for i := 0; i < 3; i++ {
		m.Update(900)
	}
	assert.Equal(t, int32(900), m.DCOffset)
	assert.Equal(t, float32(0), m.Value)
}

func TestDCEstimator_ZeroPeriod(t *testing.T) {
	var e DCEstimator
	offset, done := e.Add(100)
	assert.False(t, done)
	assert.Equal(t, int32(0), offset)
}

func TestInputMonitor_Update(t *testing.T) {
	im := InputMonitor{Gain: 0.0045}
	v := im.Update(2000)

	assert.InDelta(t, 9.0, float64(v), 1e-5)
	assert.Equal(t, uint16(2000), im.Raw)
	assert.Equal(t, v, im.Voltage)
}

func TestParseCoupling(t *testing.T) {
	tests := []struct {
		name    string
		want    Coupling
		wantErr bool
	}{
		{name: "ac", want: ACCoupled},
		{name: "dc", want: DCCoupled},
		{name: "rf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCoupling(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditioner_Update(t *testing.T) {
	c, err := NewConditioner(config.Default().Signal)
	require.NoError(t, err)

	assert.InDelta(t, 6.0, float64(c.Update(OutputVoltage, 1000)), 1e-4)
	assert.InDelta(t, 630.0, float64(c.Update(LoadCurrent, 1000)), 1e-3)
	assert.InDelta(t, 9.0, float64(c.Update(InputVoltage, 2000)), 1e-4)

	// Full-scale reference code contributes MaxVoltage / N per slot.
	sp := c.Update(SetpointRef, 4095)
	assert.InDelta(t, 1.0, float64(sp), 1e-5)
	for i := 0; i < 9; i++ {
		sp = c.Update(SetpointRef, 4095)
	}
	assert.InDelta(t, 10.0, float64(sp), 1e-4)
	assert.Equal(t, sp, c.Setpoint())

	assert.True(t, c.ApplyCeiling())
	assert.Equal(t, c.Input.Voltage, c.Setpoint())
}

func TestConditioner_UnknownChannelPanics(t *testing.T) {
	c, err := NewConditioner(config.Default().Signal)
	require.NoError(t, err)

	assert.Panics(t, func() { c.Update(Channel(42), 0) })
}

func TestNewConditioner_BadCoupling(t *testing.T) {
	cfg := config.Default().Signal
	cfg.CurrentCoupling = "none"

	_, err := NewConditioner(cfg)
	assert.Error(t, err)
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "vout", OutputVoltage.String())
	assert.Equal(t, "channel(9)", Channel(9).String())
}
