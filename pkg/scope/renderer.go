package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/gobuck/pkg/monitor"
	"github.com/itohio/gobuck/pkg/telemetry"
)

var (
	gridColor     = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	axisColor     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	setpointColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	outputColor   = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	runColor      = color.RGBA{R: 0, G: 100, B: 200, A: 255}
	statusColor   = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	staleColor    = color.RGBA{R: 255, G: 80, B: 80, A: 255}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	grid    *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// plot maps data coordinates to widget coordinates.
type plot struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

func (p plot) pos(ts time.Time, v float64) fyne.Position {
	span := p.xMax.Sub(p.xMin).Seconds()
	if span <= 0 {
		span = 1
	}
	x := p.x + float32(ts.Sub(p.xMin).Seconds()/span)*p.w
	y := p.y + p.h - float32((v-p.yMin)/(p.yMax-p.yMin))*p.h
	return fyne.NewPos(x, y)
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh redraws the plot.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.displaySamples
	runs := r.scope.runs
	stats := r.scope.stats
	p := plot{
		yMin: r.scope.yMin,
		yMax: r.scope.yMax,
		xMin: r.scope.xMin,
		xMax: r.scope.xMax,
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	const (
		marginLeft   = float32(60.0)
		marginRight  = float32(20.0)
		marginTop    = float32(20.0)
		marginBottom = float32(40.0)
	)
	p.x = marginLeft
	p.y = marginTop
	p.w = size.Width - marginLeft - marginRight
	p.h = size.Height - marginTop - marginBottom

	r.drawGrid(p)
	r.drawRuns(p, runs)
	if len(samples) > 1 {
		r.drawTrace(p, samples, setpointColor, 1.5, func(s telemetry.Sample) float32 { return s.Setpoint })
		r.drawTrace(p, samples, outputColor, 2.5, func(s telemetry.Sample) float32 { return s.Output })
	}
	if stats.Records > 0 {
		r.drawStatus(p, stats)
	}
}

// drawGrid draws the oscilloscope-style grid.
func (r *scopeRenderer) drawGrid(p plot) {
	const numHLines = 8
	for i := 0; i < numHLines+1; i++ {
		y := p.y + float32(i)*p.h/float32(numHLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(p.x, y)
		line.Position2 = fyne.NewPos(p.x+p.w, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		value := p.yMax - float64(i)*(p.yMax-p.yMin)/float64(numHLines)
		text := canvas.NewText(fmt.Sprintf("%.2fV", value), axisColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(p.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	const numVLines = 10
	span := p.xMax.Sub(p.xMin)
	for i := 0; i < numVLines+1; i++ {
		x := p.x + float32(i)*p.w/float32(numVLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(x, p.y)
		line.Position2 = fyne.NewPos(x, p.y+p.h)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		offset := span * time.Duration(i) / numVLines
		text := canvas.NewText(formatOffset(offset), axisColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, p.y+p.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws one value of the samples as connected segments.
func (r *scopeRenderer) drawTrace(p plot, samples []telemetry.Sample, c color.Color, width float32, value func(telemetry.Sample) float32) {
	var prev fyne.Position
	havePrev := false
	for _, s := range samples {
		if !s.Running {
			havePrev = false
			continue
		}
		pos := p.pos(s.Timestamp, float64(value(s)))
		if havePrev {
			line := canvas.NewLine(c)
			line.Position1 = prev
			line.Position2 = pos
			line.StrokeWidth = width
			r.objects = append(r.objects, line)
		}
		prev = pos
		havePrev = true
	}
}

// drawRuns marks run boundaries and labels each run with its mean tracking
// error.
func (r *scopeRenderer) drawRuns(p plot, runs []monitor.Run) {
	for _, run := range runs {
		for _, ts := range []time.Time{run.StartTime, run.EndTime} {
			x := p.pos(ts, p.yMin).X
			line := canvas.NewLine(runColor)
			line.Position1 = fyne.NewPos(x, p.y)
			line.Position2 = fyne.NewPos(x, p.y+p.h)
			line.StrokeWidth = 1
			r.objects = append(r.objects, line)
		}

		center := run.StartTime.Add(run.EndTime.Sub(run.StartTime) / 2)
		pos := p.pos(center, float64(run.MeanOutput))
		text := canvas.NewText(fmt.Sprintf("err %.2fV", run.MeanError), setpointColor)
		text.TextSize = 12
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(pos.X-30, pos.Y-20))
		r.objects = append(r.objects, text)
	}
}

// drawStatus draws the latest record in the top left corner.
func (r *scopeRenderer) drawStatus(p plot, stats monitor.Stats) {
	line := string(telemetry.Format(telemetry.Record{
		Running:  stats.Running,
		Setpoint: stats.Setpoint,
		Output:   stats.Output,
		Current:  stats.Current,
		Clock:    stats.Clock,
	}))
	c := statusColor
	if stats.ClockStale {
		line += "  (clock stale)"
		c = staleColor
	}

	text := canvas.NewText(line, c)
	text.TextSize = 11
	text.Alignment = fyne.TextAlignLeading
	text.Move(fyne.NewPos(p.x+10, p.y+10))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func formatOffset(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
