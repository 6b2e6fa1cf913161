package controller

import (
	"log"
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/gobuck/pkg/config"
)

// Network layer sizes (3-3-2-1).
const (
	InputSize   = 3
	Hidden1Size = 3
	Hidden2Size = 2
)

const (
	inputBias   = 1.0
	initialBias = 0.01
	leakySlope  = 0.01
)

// Limits normalize the network inputs.
type Limits struct {
	MaxVoltage   float32 // V
	MaxCurrentMA float32 // mA
}

// Weights holds every trainable parameter of the network.
type Weights struct {
	W1 [InputSize][Hidden1Size]float32
	B1 [Hidden1Size]float32
	W2 [Hidden1Size][Hidden2Size]float32
	B2 [Hidden2Size]float32
	Wo [Hidden2Size]float32
	Bo float32
}

// Network is a tiny feed-forward regulator trained online: every Compute
// performs one forward pass and one gradient step on the live tracking error.
type Network struct {
	Weights

	eta         float32
	keepWeights bool
	limits      Limits
	rng         *rand.Rand
	initialized bool
}

// NewNetwork creates a network. Call Init before use.
func NewNetwork(cfg config.NNConfig, limits Limits) *Network {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Network{
		eta:         cfg.Eta,
		keepWeights: cfg.KeepWeightsOnReset,
		limits:      limits,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Init draws fresh He-scaled weights, uniform in ±sqrt(2/fan_in) per layer.
func (n *Network) Init() {
	scale := math32.Sqrt(2.0 / InputSize)
	for x := 0; x < InputSize; x++ {
		for y := 0; y < Hidden1Size; y++ {
			n.W1[x][y] = n.uniform() * scale
		}
	}

	scale = math32.Sqrt(2.0 / Hidden1Size)
	for x := 0; x < Hidden1Size; x++ {
		n.B1[x] = initialBias
		for y := 0; y < Hidden2Size; y++ {
			n.W2[x][y] = n.uniform() * scale
		}
	}

	scale = math32.Sqrt(2.0 / Hidden2Size)
	for x := 0; x < Hidden2Size; x++ {
		n.B2[x] = initialBias
		n.Wo[x] = n.uniform() * scale
	}
	n.Bo = initialBias
	n.initialized = true
}

// Reset re-initializes the weights, discarding everything learned, unless
// the network was configured to keep its weights across stop/start cycles.
func (n *Network) Reset() {
	if n.keepWeights && n.initialized {
		return
	}
	n.Init()
}

// Inputs builds the normalized input vector.
func (n *Network) Inputs(measuredOutput, measuredCurrent float32) [InputSize]float32 {
	current := 2*measuredCurrent/n.limits.MaxCurrentMA - 1
	if current < -1 {
		current = -1
	}
	if current > 1 {
		current = 1
	}
	return [InputSize]float32{
		inputBias,
		2*measuredOutput/n.limits.MaxVoltage - 1,
		current,
	}
}

// Compute runs the network and then trains it on the current error.
func (n *Network) Compute(setpoint, measuredOutput, measuredCurrent float32) float32 {
	in := n.Inputs(measuredOutput, measuredCurrent)

	out := Clamp(n.Forward(in))

	errNorm := (setpoint - measuredOutput) / n.limits.MaxVoltage
	n.Backpropagate(in, errNorm)

	if !n.finite() {
		log.Printf("Neural network diverged, reinitializing weights")
		n.Init()
		return MinDuty
	}

	return out
}

// Forward returns the output activation for in.
func (n *Network) Forward(in [InputSize]float32) float32 {
	_, _, out := n.forward(in)
	return reluClipped(out)
}

func (n *Network) forward(in [InputSize]float32) (h1 [Hidden1Size]float32, h2 [Hidden2Size]float32, out float32) {
	for x := 0; x < Hidden1Size; x++ {
		h1[x] = n.B1[x]
		for y := 0; y < InputSize; y++ {
			h1[x] += in[y] * n.W1[y][x]
		}
		h1[x] = relu(h1[x])
	}

	for x := 0; x < Hidden2Size; x++ {
		h2[x] = n.B2[x]
		for y := 0; y < Hidden1Size; y++ {
			h2[x] += h1[y] * n.W2[y][x]
		}
		h2[x] = relu(h2[x])
	}

	out = n.Bo
	for x := 0; x < Hidden2Size; x++ {
		out += h2[x] * n.Wo[x]
	}
	return h1, h2, out
}

// Backpropagate performs one gradient step towards reducing errNorm.
// Layers are updated output first and each layer's delta is computed with
// the weights above it already updated.
func (n *Network) Backpropagate(in [InputSize]float32, errNorm float32) {
	h1, h2, out := n.forward(in)

	deltaOut := errNorm * reluGrad(relu(out))

	for x := 0; x < Hidden2Size; x++ {
		n.Wo[x] += n.eta * deltaOut * h2[x]
	}
	n.Bo += n.eta * deltaOut

	var deltaH2 [Hidden2Size]float32
	for x := 0; x < Hidden2Size; x++ {
		deltaH2[x] = deltaOut * n.Wo[x] * reluGrad(h2[x])
		for y := 0; y < Hidden1Size; y++ {
			n.W2[y][x] += n.eta * deltaH2[x] * h1[y]
		}
		n.B2[x] += n.eta * deltaH2[x]
	}

	for y := 0; y < Hidden1Size; y++ {
		var sum float32
		for x := 0; x < Hidden2Size; x++ {
			sum += deltaH2[x] * n.W2[y][x]
		}
		deltaH1 := sum * reluGrad(h1[y])
		for x := 0; x < InputSize; x++ {
			n.W1[x][y] += n.eta * deltaH1 * in[x]
		}
		n.B1[y] += n.eta * deltaH1
	}
}

// Flatten returns every weight (not biases) layer by layer.
func (n *Network) Flatten() (w1, w2, wo []float32) {
	for x := 0; x < InputSize; x++ {
		w1 = append(w1, n.W1[x][:]...)
	}
	for x := 0; x < Hidden1Size; x++ {
		w2 = append(w2, n.W2[x][:]...)
	}
	wo = append(wo, n.Wo[:]...)
	return w1, w2, wo
}

func (n *Network) finite() bool {
	w1, w2, wo := n.Flatten()
	for _, set := range [][]float32{w1, w2, wo, n.B1[:], n.B2[:], {n.Bo}} {
		for _, v := range set {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func (n *Network) uniform() float32 {
	return n.rng.Float32()*2 - 1
}

func relu(v float32) float32 {
	if v > 0 {
		return v
	}
	return 0
}

func reluGrad(v float32) float32 {
	if v > 0 {
		return 1
	}
	return 0
}

func leakyRelu(v float32) float32 {
	if v > 0 {
		return v
	}
	return leakySlope * v
}

func reluClipped(v float32) float32 {
	return math32.Min(leakyRelu(v), 1)
}
