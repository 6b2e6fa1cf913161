package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/monitor"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// ScopeWidget is a Fyne widget plotting setpoint and output voltage over time.
type ScopeWidget struct {
	widget.BaseWidget

	cfg config.MonitorConfig

	// Data (protected by mu)
	mu      sync.RWMutex
	samples []telemetry.Sample
	runs    []monitor.Run
	stats   monitor.Stats

	// Display buffer (reused for downsampling)
	displaySamples []telemetry.Sample

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time
}

// New creates a new ScopeWidget instance.
func New(cfg config.MonitorConfig) *ScopeWidget {
	s := &ScopeWidget{
		cfg:            cfg,
		samples:        make([]telemetry.Sample, 0),
		runs:           make([]monitor.Run, 0),
		displaySamples: make([]telemetry.Sample, 0, cfg.MaxDisplayPoints),
	}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData updates the widget with a new window. Call it on the main thread
// (fyne.Do).
func (s *ScopeWidget) UpdateData(samples []telemetry.Sample, runs []monitor.Run, stats monitor.Stats) {
	s.mu.Lock()
	s.displaySamples = monitor.Downsample(s.displaySamples, samples, s.cfg.MaxDisplayPoints)
	s.samples = samples
	s.runs = runs
	s.stats = stats
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

// updateAutoScale fits the Y axis to the plotted voltages.
func (s *ScopeWidget) updateAutoScale() {
	if len(s.displaySamples) == 0 {
		s.yMin = 0.0
		s.yMax = 1.0
		s.xMin = time.Now()
		s.xMax = s.xMin.Add(10 * time.Second)
		return
	}

	s.yMin = 0
	s.yMax = 0
	for _, sample := range s.displaySamples {
		for _, v := range []float64{float64(sample.Setpoint), float64(sample.Output)} {
			if v < s.yMin {
				s.yMin = v
			}
			if v > s.yMax {
				s.yMax = v
			}
		}
	}

	span := s.yMax - s.yMin
	if span == 0 {
		span = 1.0
	}
	margin := span * 0.1
	s.yMin -= margin
	s.yMax += margin

	s.xMin = s.displaySamples[0].Timestamp
	s.xMax = s.displaySamples[len(s.displaySamples)-1].Timestamp
	if s.xMax.Sub(s.xMin) < s.cfg.Window {
		s.xMax = s.xMin.Add(s.cfg.Window)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
