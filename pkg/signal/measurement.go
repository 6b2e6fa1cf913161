package signal

import (
	"fmt"

	"github.com/itohio/gobuck/pkg/config"
)

// Channel identifies a physical measurement.
type Channel uint8

const (
	SetpointRef Channel = iota
	InputVoltage
	OutputVoltage
	LoadCurrent
)

func (c Channel) String() string {
	switch c {
	case SetpointRef:
		return "setpoint"
	case InputVoltage:
		return "vin"
	case OutputVoltage:
		return "vout"
	case LoadCurrent:
		return "iload"
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// Coupling selects whether a measurement's DC component is removed.
type Coupling uint8

const (
	DCCoupled Coupling = iota
	ACCoupled
)

// ParseCoupling converts a config coupling name.
func ParseCoupling(name string) (Coupling, error) {
	switch name {
	case config.CouplingAC:
		return ACCoupled, nil
	case config.CouplingDC:
		return DCCoupled, nil
	}
	return DCCoupled, fmt.Errorf("unknown coupling %q", name)
}

// Measurement converts raw ADC codes of one channel to engineering units.
type Measurement struct {
	Raw      uint16
	Value    float32
	DCOffset int32
	Coupling Coupling
	Gain     float32

	dc DCEstimator
}

// NewMeasurement creates a measurement with the given gain. period is the
// number of samples in one fundamental period and is only used for AC coupling.
func NewMeasurement(coupling Coupling, gain float32, period int) Measurement {
	return Measurement{
		Coupling: coupling,
		Gain:     gain,
		dc:       DCEstimator{period: period},
	}
}

// Update converts raw to Value, subtracting the running DC offset for
// AC-coupled channels.
func (m *Measurement) Update(raw uint16) float32 {
	m.Raw = raw
	if m.Coupling == ACCoupled {
		if offset, done := m.dc.Add(raw); done {
			m.DCOffset = offset
		}
	} else {
		m.DCOffset = 0
	}
	m.Value = float32(int32(raw)-m.DCOffset) * m.Gain
	return m.Value
}

// DCEstimator averages raw codes over a fixed number of samples.
type DCEstimator struct {
	period int
	count  int
	sum    int64
}

// Add accumulates raw. When a full period has been collected it returns the
// period average and true, and starts the next period.
func (e *DCEstimator) Add(raw uint16) (int32, bool) {
	if e.period <= 0 {
		return 0, false
	}
	e.sum += int64(raw)
	e.count++
	if e.count < e.period {
		return 0, false
	}
	offset := int32(e.sum / int64(e.period))
	e.sum = 0
	e.count = 0
	return offset, true
}

// InputMonitor tracks the input rail. It is used only as a safety ceiling.
type InputMonitor struct {
	Raw     uint16
	Gain    float32
	Voltage float32
}

// Update converts raw to Voltage.
func (im *InputMonitor) Update(raw uint16) float32 {
	im.Raw = raw
	im.Voltage = float32(raw) * im.Gain
	return im.Voltage
}
