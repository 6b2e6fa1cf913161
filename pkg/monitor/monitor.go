// Package monitor keeps a time window of received telemetry and tracks the
// converter run intervals in it.
package monitor

import (
	"sync"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// Run is a contiguous interval of Running records.
type Run struct {
	StartIndex int       // First record index in the window
	EndIndex   int       // Last record index (updated while the run continues)
	StartTime  time.Time // Host time of the first record
	EndTime    time.Time // Host time of the last record
	MeanOutput float32   // Mean output voltage over the run (V)
	MeanError  float32   // Mean setpoint minus output over the run (V)
	PeakLoad   float32   // Highest load current over the run (mA)

	n         int
	sumOutput float32
	sumError  float32
}

// Stats summarizes the latest record.
type Stats struct {
	Records    int
	Running    bool
	Setpoint   float32
	Output     float32
	Current    float32
	Clock      telemetry.Clock
	ClockStale bool // the converter clock did not advance between the last two records
	LastSeen   time.Time
}

// Callback receives copies of the window on every record.
type Callback func(samples []telemetry.Sample, runs []Run, stats Stats)

// Monitor buffers telemetry samples over a time window.
type Monitor struct {
	window time.Duration

	mu       sync.RWMutex
	samples  []telemetry.Sample
	runs     []Run
	stats    Stats
	shutdown bool

	callbacks []Callback
	cbMu      sync.RWMutex
}

// New creates a monitor.
func New(cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		window:  cfg.Window,
		samples: make([]telemetry.Sample, 0),
		runs:    make([]Run, 0),
	}
}

// ProcessSamples consumes input until it is closed. After that no more
// callbacks are invoked until ResetShutdown.
func (m *Monitor) ProcessSamples(input <-chan telemetry.Sample) {
	for s := range input {
		m.processSample(s)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

func (m *Monitor) processSample(s telemetry.Sample) {
	m.mu.Lock()

	var prev *telemetry.Sample
	if n := len(m.samples); n > 0 {
		p := m.samples[n-1]
		prev = &p
	}

	m.samples = append(m.samples, s)
	m.trim(s.Timestamp)
	m.updateRuns(prev)
	m.updateStats(prev)

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// trim drops samples older than the window and shifts run indices.
func (m *Monitor) trim(now time.Time) {
	if m.window <= 0 {
		return
	}

	cutoff := now.Add(-m.window)
	cut := 0
	for cut < len(m.samples)-1 && !m.samples[cut].Timestamp.After(cutoff) {
		cut++
	}
	if cut == 0 {
		return
	}
	m.samples = m.samples[cut:]

	runs := m.runs[:0]
	for _, r := range m.runs {
		r.StartIndex -= cut
		r.EndIndex -= cut
		if r.EndIndex < 0 {
			continue
		}
		if r.StartIndex < 0 {
			r.StartIndex = 0
		}
		runs = append(runs, r)
	}
	m.runs = runs
}

// updateRuns extends the current run or opens a new one.
func (m *Monitor) updateRuns(prev *telemetry.Sample) {
	last := len(m.samples) - 1
	s := m.samples[last]
	if !s.Running {
		return
	}

	var r *Run
	if prev != nil && prev.Running && len(m.runs) > 0 && m.runs[len(m.runs)-1].EndIndex == last-1 {
		r = &m.runs[len(m.runs)-1]
	} else {
		m.runs = append(m.runs, Run{StartIndex: last, StartTime: s.Timestamp})
		r = &m.runs[len(m.runs)-1]
	}

	r.EndIndex = last
	r.EndTime = s.Timestamp
	r.n++
	r.sumOutput += s.Output
	r.sumError += s.Setpoint - s.Output
	r.MeanOutput = r.sumOutput / float32(r.n)
	r.MeanError = r.sumError / float32(r.n)
	if s.Current > r.PeakLoad {
		r.PeakLoad = s.Current
	}
}

func (m *Monitor) updateStats(prev *telemetry.Sample) {
	s := m.samples[len(m.samples)-1]
	m.stats = Stats{
		Records:  m.stats.Records + 1,
		Running:  s.Running,
		Setpoint: s.Setpoint,
		Output:   s.Output,
		Current:  s.Current,
		Clock:    s.Clock,
		LastSeen: s.Timestamp,
	}
	if prev != nil && prev.Clock == s.Clock && s.Timestamp.Sub(prev.Timestamp) >= time.Second {
		m.stats.ClockStale = true
	}
}

// Samples returns a copy of the window, oldest first.
func (m *Monitor) Samples() []telemetry.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]telemetry.Sample, len(m.samples))
	copy(result, m.samples)
	return result
}

// Latest returns the newest sample in the window.
func (m *Monitor) Latest() (telemetry.Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.samples) == 0 {
		return telemetry.Sample{}, false
	}
	return m.samples[len(m.samples)-1], true
}

// Runs returns a copy of the run intervals in the window.
func (m *Monitor) Runs() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Run, len(m.runs))
	copy(result, m.runs)
	return result
}

// Stats returns the latest summary.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// OnUpdate registers a callback invoked after every record. The callback
// should copy what it needs and return quickly.
func (m *Monitor) OnUpdate(callback Callback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown re-enables callbacks before processing a new stream.
func (m *Monitor) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// notifyCallbacks copies the window under the read lock and invokes the
// callbacks without holding any lock.
func (m *Monitor) notifyCallbacks() {
	m.mu.RLock()
	samples := make([]telemetry.Sample, len(m.samples))
	copy(samples, m.samples)
	runs := make([]Run, len(m.runs))
	copy(runs, m.runs)
	stats := m.stats
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]Callback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(samples, runs, stats)
		}
	}
}
