package controller

import (
	"fmt"

	"github.com/itohio/gobuck/pkg/config"
)

// Duty limits. The headroom keeps the high-side bootstrap supply charged.
const (
	MinDuty float32 = 0.025
	MaxDuty float32 = 0.975
)

// Kind selects the controller variant.
type Kind uint8

const (
	PI Kind = iota
	NeuralNet
)

func (k Kind) String() string {
	switch k {
	case PI:
		return "pi"
	case NeuralNet:
		return "nn"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind converts a config controller type.
func ParseKind(name string) (Kind, error) {
	switch name {
	case config.ControllerPI:
		return PI, nil
	case config.ControllerNeuralNet:
		return NeuralNet, nil
	}
	return PI, fmt.Errorf("unknown controller type %q", name)
}

// Controller is the duty-cycle strategy. The variant is fixed at
// construction and every call dispatches on it.
type Controller struct {
	kind Kind
	pi   PIController
	nn   *Network
}

// New creates and initializes a controller of the given kind.
func New(kind Kind, cfg config.ControllerConfig, limits Limits) (*Controller, error) {
	c := &Controller{kind: kind}
	switch kind {
	case PI:
		c.pi = PIController{B0: cfg.PI.B0, B1: cfg.PI.B1, A1: cfg.PI.A1}
	case NeuralNet:
		c.nn = NewNetwork(cfg.NN, limits)
	default:
		return nil, fmt.Errorf("unknown controller kind %d", uint8(kind))
	}
	c.Init()
	return c, nil
}

// FromConfig creates the controller selected by cfg.Type.
func FromConfig(cfg config.ControllerConfig, signal config.SignalConfig) (*Controller, error) {
	kind, err := ParseKind(cfg.Type)
	if err != nil {
		return nil, err
	}
	return New(kind, cfg, Limits{MaxVoltage: signal.MaxVoltage, MaxCurrentMA: signal.MaxCurrentMA})
}

// Kind returns the selected variant.
func (c *Controller) Kind() Kind {
	return c.kind
}

// Init (re)initializes the controller state.
func (c *Controller) Init() {
	switch c.kind {
	case PI:
		c.pi.Init()
	case NeuralNet:
		c.nn.Init()
	}
}

// Compute returns the next duty fraction in [MinDuty, MaxDuty].
func (c *Controller) Compute(setpoint, measuredOutput, measuredCurrent float32) float32 {
	var out float32
	switch c.kind {
	case PI:
		out = c.pi.Compute(setpoint, measuredOutput)
	case NeuralNet:
		out = c.nn.Compute(setpoint, measuredOutput, measuredCurrent)
	}
	return Clamp(out)
}

// Reset returns the controller to its Init state.
func (c *Controller) Reset() {
	switch c.kind {
	case PI:
		c.pi.Reset()
	case NeuralNet:
		c.nn.Reset()
	}
}

// Network exposes the neural network of a NeuralNet controller, nil otherwise.
func (c *Controller) Network() *Network {
	return c.nn
}

// Clamp bounds duty to [MinDuty, MaxDuty]. NaN maps to MinDuty.
func Clamp(duty float32) float32 {
	if duty != duty || duty < MinDuty {
		return MinDuty
	}
	if duty > MaxDuty {
		return MaxDuty
	}
	return duty
}
