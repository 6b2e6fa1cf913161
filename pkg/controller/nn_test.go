package controller

import (
	"math"
	"testing"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

var testLimits = Limits{MaxVoltage: 10, MaxCurrentMA: 1000}

func newNetwork(seed int64, keep bool) *Network {
	n := NewNetwork(config.NNConfig{Eta: 0.01, Seed: seed, KeepWeightsOnReset: keep}, testLimits)
	n.Init()
	return n
}

func toFloat64(values []float32) []float64 {
	result := make([]float64, len(values))
	for i, v := range values {
		result[i] = float64(v)
	}
	return result
}

func TestNetwork_InitBiases(t *testing.T) {
	n := newNetwork(1, false)

	assert.Equal(t, [Hidden1Size]float32{0.01, 0.01, 0.01}, n.B1)
	assert.Equal(t, [Hidden2Size]float32{0.01, 0.01}, n.B2)
	assert.Equal(t, float32(0.01), n.Bo)
}

func TestNetwork_InitBounds(t *testing.T) {
	n := newNetwork(2, false)
	w1, w2, wo := n.Flatten()

	for _, w := range w1 {
		assert.LessOrEqual(t, math.Abs(float64(w)), math.Sqrt(2.0/3)+1e-6)
	}
	for _, w := range w2 {
		assert.LessOrEqual(t, math.Abs(float64(w)), math.Sqrt(2.0/3)+1e-6)
	}
	for _, w := range wo {
		assert.LessOrEqual(t, math.Abs(float64(w)), 1.0+1e-6)
	}
}

// Uniform(-s, s) has variance s²/3; with s² = 2/fan_in per layer.
func TestNetwork_ResetDistribution(t *testing.T) {
	const draws = 2000

	collect := func(next func() *Network) (w1, w2, wo []float64) {
		for i := 0; i < draws; i++ {
			a, b, c := next().Flatten()
			w1 = append(w1, toFloat64(a)...)
			w2 = append(w2, toFloat64(b)...)
			wo = append(wo, toFloat64(c)...)
		}
		return w1, w2, wo
	}

	seed := int64(100)
	fresh := func() *Network {
		seed++
		return newNetwork(seed, false)
	}

	reused := newNetwork(99, false)
	reset := func() *Network {
		reused.Reset()
		reused.Init()
		return reused
	}

	for name, next := range map[string]func() *Network{"construction": fresh, "reset": reset} {
		t.Run(name, func(t *testing.T) {
			w1, w2, wo := collect(next)

			mean, variance := stat.MeanVariance(w1, nil)
			assert.InDelta(t, 0, mean, 0.02)
			assert.InDelta(t, 2.0/9, variance, 0.01)

			mean, variance = stat.MeanVariance(w2, nil)
			assert.InDelta(t, 0, mean, 0.02)
			assert.InDelta(t, 2.0/9, variance, 0.01)

			mean, variance = stat.MeanVariance(wo, nil)
			assert.InDelta(t, 0, mean, 0.04)
			assert.InDelta(t, 1.0/3, variance, 0.03)
		})
	}
}

func TestNetwork_ResetDiscardsWeights(t *testing.T) {
	n := newNetwork(5, false)
	before := n.Weights

	n.Reset()

	assert.NotEqual(t, before, n.Weights)
}

func TestNetwork_ResetKeepsWeights(t *testing.T) {
	n := newNetwork(5, true)
	for i := 0; i < 100; i++ {
		n.Compute(5, 3, 200)
	}
	learned := n.Weights

	n.Reset()

	assert.Equal(t, learned, n.Weights)
}

func TestNetwork_SameSeedSameWeights(t *testing.T) {
	a := newNetwork(11, false)
	b := newNetwork(11, false)

	assert.Equal(t, a.Weights, b.Weights)
}

func TestNetwork_Inputs(t *testing.T) {
	n := newNetwork(1, false)

	in := n.Inputs(5, 500)
	assert.Equal(t, [InputSize]float32{1, 0, 0}, in)

	in = n.Inputs(10, 5000)
	assert.Equal(t, float32(1), in[1])
	assert.Equal(t, float32(1), in[2])

	in = n.Inputs(0, -800)
	assert.Equal(t, float32(-1), in[1])
	assert.Equal(t, float32(-1), in[2])
}

func TestNetwork_TrainingMovesOutput(t *testing.T) {
	n := newNetwork(21, false)
	// Force an active path so the gradient is not gated to zero.
	n.Weights = Weights{
		W1: [InputSize][Hidden1Size]float32{{0.5, 0.5, 0.5}},
		B1: [Hidden1Size]float32{0.01, 0.01, 0.01},
		W2: [Hidden1Size][Hidden2Size]float32{{0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}},
		B2: [Hidden2Size]float32{0.01, 0.01},
		Wo: [Hidden2Size]float32{0.2, 0.2},
		Bo: 0.01,
	}

	in := n.Inputs(2, 0)
	before := n.Forward(in)

	// Output well below setpoint: positive error pushes the duty up.
	n.Compute(8, 2, 0)

	assert.Greater(t, n.Forward(in), before)
}

func TestNetwork_NoUpdateWhenOutputGated(t *testing.T) {
	n := newNetwork(21, false)
	n.Wo = [Hidden2Size]float32{-1, -1}
	n.Bo = -1
	before := n.Weights

	duty := n.Compute(8, 2, 0)

	assert.Equal(t, MinDuty, Clamp(duty))
	assert.Equal(t, before, n.Weights)
}

func TestNetwork_DivergenceReinitializes(t *testing.T) {
	n := newNetwork(8, false)
	n.Wo[0] = float32(math.Inf(1))

	duty := n.Compute(5, 4, 100)

	assert.Equal(t, MinDuty, duty)
	assert.True(t, n.finite())
}

func TestActivations(t *testing.T) {
	assert.Equal(t, float32(0), relu(-2))
	assert.Equal(t, float32(2), relu(2))
	assert.Equal(t, float32(-0.02), leakyRelu(-2))
	assert.Equal(t, float32(1), reluClipped(3))
	assert.Equal(t, float32(0.5), reluClipped(0.5))
	assert.Equal(t, float32(-0.01), reluClipped(-1))
}
