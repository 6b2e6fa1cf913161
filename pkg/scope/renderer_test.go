package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlotPos(t *testing.T) {
	start := time.Now()
	p := plot{
		x: 10, y: 20, w: 100, h: 50,
		yMin: 0, yMax: 10,
		xMin: start, xMax: start.Add(10 * time.Second),
	}

	pos := p.pos(start, 0)
	assert.InDelta(t, 10, pos.X, 1e-4)
	assert.InDelta(t, 70, pos.Y, 1e-4)

	pos = p.pos(start.Add(5*time.Second), 10)
	assert.InDelta(t, 60, pos.X, 1e-4)
	assert.InDelta(t, 20, pos.Y, 1e-4)
}

func TestPlotPos_EmptyTimeSpan(t *testing.T) {
	start := time.Now()
	p := plot{w: 100, h: 100, yMin: 0, yMax: 1, xMin: start, xMax: start}

	pos := p.pos(start, 0.5)
	assert.InDelta(t, 0, pos.X, 1e-4)
	assert.InDelta(t, 50, pos.Y, 1e-4)
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "0s", formatOffset(0))
	assert.Equal(t, "30s", formatOffset(30*time.Second))
	assert.Equal(t, "1.5m", formatOffset(90*time.Second))
}
