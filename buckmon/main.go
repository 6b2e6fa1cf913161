package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/monitor"
	"github.com/itohio/gobuck/pkg/scope"
	"github.com/itohio/gobuck/pkg/store"
	"github.com/itohio/gobuck/pkg/telemetry"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		replayFlag  = flag.String("replay", "", "Replay a captured telemetry file instead of reading the serial port")
		mockFlag    = flag.Bool("mock", false, "Run a simulated converter instead of reading the serial port")
		windowFlag  = flag.Duration("window", 0, "Display window override (e.g., 5m)")
		historyFlag = flag.String("history", "", "Directory of the telemetry history database (empty = config store.path)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *windowFlag > 0 {
		cfg.Monitor.Window = *windowFlag
	}
	if *historyFlag != "" {
		cfg.Store.Path = *historyFlag
	}

	var history *store.Store
	if cfg.Store.Path != "" || cfg.Store.InMemory {
		history, err = store.Open(cfg.Store)
		if err != nil {
			log.Fatalf("Failed to open history: %v", err)
		}
		log.Printf("Persisting telemetry every %v to %q", cfg.Store.Interval, cfg.Store.Path)
	}

	application := app.NewWithID("com.itohio.gobuck")

	window := application.NewWindow("Buck Converter Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		replay:     *replayFlag,
		useMock:    *mockFlag,
		history:    history,
		window:     window,
	}

	toolbar := createToolbar(state)

	state.scopeWidget = scope.New(cfg.Monitor)
	state.statusLabel = widget.NewLabel(statusText(monitor.Stats{}, false))
	attachMonitor(state, monitor.New(cfg.Monitor))

	content := container.NewBorder(
		toolbar,
		state.statusLabel,
		nil,
		nil,
		state.scopeWidget,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		closeChain(state.chain)
		if history != nil {
			if err := history.Close(); err != nil {
				log.Printf("Error closing history: %v", err)
			}
		}
	})
	window.ShowAndRun()
}

// chain tracks the reading pipeline for graceful shutdown.
type chain struct {
	source  telemetry.Source
	monitor chan struct{} // Closed when the monitor goroutine exits

	stopHistory context.CancelFunc
	history     chan struct{} // Closed when the history writer exits
}

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	replay     string
	useMock    bool
	history    *store.Store // nil when persistence is off

	source      telemetry.Source
	commander   commander // nil while replaying
	mon         *monitor.Monitor
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	connectBtn  *widget.Button
	startBtn    *widget.Button
	stopBtn     *widget.Button
	statusLabel *widget.Label
	running     bool
	chain       *chain

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the toolbar with Connect, Settings, Start and Stop buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	startBtn := widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
		handleCommand(state, telemetry.CommandStart)
	})
	startBtn.Disable()
	state.startBtn = startBtn

	stopBtn := widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		handleCommand(state, telemetry.CommandStop)
	})
	stopBtn.Disable()
	state.stopBtn = stopBtn

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn),
		container.NewHBox(startBtn, stopBtn),
		nil,
	)
}

// attachMonitor installs mon as the active monitor and forwards its updates
// to the scope at most ~60 times per second.
func attachMonitor(state *appState, mon *monitor.Monitor) {
	const updateInterval = 16 * time.Millisecond
	state.mon = mon
	mon.OnUpdate(func(samples []telemetry.Sample, runs []monitor.Run, stats monitor.Stats) {
		state.updateMu.Lock()
		now := time.Now()
		if now.Sub(state.lastUpdateTime) < updateInterval {
			state.updateMu.Unlock()
			return
		}
		state.lastUpdateTime = now
		state.updateMu.Unlock()

		fyne.Do(func() {
			state.scopeWidget.UpdateData(samples, runs, stats)
			updateStatus(state, stats)
		})
	})
}

// closeChain closes the source and waits for the monitor to drain it.
func closeChain(c *chain) {
	if c == nil {
		return
	}
	if c.stopHistory != nil {
		c.stopHistory()
		<-c.history
	}
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			log.Printf("Error closing telemetry source: %v", err)
		}
	}
	if c.monitor != nil {
		<-c.monitor
	}
}

// commander sends START/STOP to the converter.
type commander interface {
	SendCommand(cmd telemetry.Command) error
	IsConnected() bool
}

// openSource creates the telemetry source selected on the command line.
func openSource(state *appState) (telemetry.Source, commander, error) {
	switch {
	case state.replay != "":
		f, err := os.Open(state.replay)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open replay file: %w", err)
		}
		return telemetry.NewStream(f, telemetry.DefaultBufferSize), nil, nil
	case state.useMock:
		sim, err := newSimulator(state.cfg)
		if err != nil {
			return nil, nil, err
		}
		return sim, sim, nil
	}
	s := telemetry.NewSerial(state.cfg.Serial.Port, state.cfg.Serial.BaudRate, telemetry.DefaultBufferSize)
	return s, s, nil
}

func (state *appState) describeSource() string {
	switch {
	case state.replay != "":
		return state.replay
	case state.useMock:
		return "simulated converter"
	}
	return state.cfg.Serial.Port
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.source != nil && state.source.IsConnected() {
		disconnect(state)
		return
	}

	source, cmd, err := openSource(state)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := source.Connect(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.describeSource(), err), state.window)
		return
	}
	state.source = source
	state.commander = cmd
	if cmd != nil {
		state.startBtn.Enable()
		state.stopBtn.Enable()
	}
	log.Printf("Connected to %s", state.describeSource())

	state.mon.ResetShutdown()

	done := make(chan struct{})
	mon := state.mon
	go func() {
		defer close(done)
		mon.ProcessSamples(source.Samples())
	}()

	state.chain = &chain{
		source:  source,
		monitor: done,
	}

	if state.history != nil {
		ctx, cancel := context.WithCancel(context.Background())
		historyDone := make(chan struct{})
		go func() {
			defer close(historyDone)
			state.history.Run(ctx, mon.Latest)
		}()
		state.chain.stopHistory = cancel
		state.chain.history = historyDone
	}
}

// disconnect tears down the current chain and resets the controls.
func disconnect(state *appState) {
	closeChain(state.chain)
	state.chain = nil
	state.source = nil
	state.commander = nil
	state.startBtn.Disable()
	state.stopBtn.Disable()
	state.running = false
	updateRunButtons(state)
	log.Printf("Disconnected")
}
