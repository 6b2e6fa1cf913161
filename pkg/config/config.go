package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Controller type names accepted in ControllerConfig.Type.
const (
	ControllerPI        = "pi"
	ControllerNeuralNet = "nn"
)

// Coupling names accepted in SignalConfig.
const (
	CouplingAC = "ac"
	CouplingDC = "dc"
)

// Config represents the application configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Signal     SignalConfig     `yaml:"signal"`
	Controller ControllerConfig `yaml:"controller"`
	Core       CoreConfig       `yaml:"core"`
	Tasks      TasksConfig      `yaml:"tasks"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	API        APIConfig        `yaml:"api"`
	Store      StoreConfig      `yaml:"store"`
	Plant      PlantConfig      `yaml:"plant"`
	Monitor    MonitorConfig    `yaml:"monitor"`
}

// SerialConfig contains telemetry UART configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`      // Empty port sends telemetry to stdout
	BaudRate int    `yaml:"baud_rate"` // 9600 by default
}

// SignalConfig contains the measurement model and reference filter parameters.
type SignalConfig struct {
	MaxADC          float32 `yaml:"max_adc"`           // Full-scale ADC code (4095 for 12 bit)
	MaxVoltage      float32 `yaml:"max_voltage"`       // Full-scale setpoint/output voltage (V)
	MaxCurrentMA    float32 `yaml:"max_current_ma"`    // Full-scale load current (mA)
	VoltageGain     float32 `yaml:"voltage_gain"`      // Output voltage V per code
	CurrentGain     float32 `yaml:"current_gain"`      // Load current mA per code
	InputGain       float32 `yaml:"input_gain"`        // Input voltage V per code
	OutputCoupling  string  `yaml:"output_coupling"`   // "ac" or "dc"
	CurrentCoupling string  `yaml:"current_coupling"`  // "ac" or "dc"
	DCPeriodSamples int     `yaml:"dc_period_samples"` // Samples per fundamental period for DC offset estimation
	FilterSize      int     `yaml:"filter_size"`       // Reference filter window
	CeilingRatio    float32 `yaml:"ceiling_ratio"`     // Setpoint above ratio*Vin is clamped to Vin
}

// ControllerConfig selects and parameterizes the controller.
type ControllerConfig struct {
	Type string   `yaml:"type"` // "pi" or "nn"
	PI   PIConfig `yaml:"pi"`
	NN   NNConfig `yaml:"nn"`
}

// PIConfig holds direct-form-I coefficients.
type PIConfig struct {
	B0 float32 `yaml:"b0"`
	B1 float32 `yaml:"b1"`
	A1 float32 `yaml:"a1"`
}

// NNConfig holds neural network training parameters.
type NNConfig struct {
	Eta                float32 `yaml:"eta"`
	Seed               int64   `yaml:"seed"` // 0 seeds from the clock
	KeepWeightsOnReset bool    `yaml:"keep_weights_on_reset"`
}

// CoreConfig contains sampler timing and fault policy.
type CoreConfig struct {
	TickPeriod          time.Duration `yaml:"tick_period"`
	ConversionTimeout   time.Duration `yaml:"conversion_timeout"`
	MaxConversionFaults int           `yaml:"max_conversion_faults"` // Consecutive faults before forcing Idle; negative disables, 0 means default
	HeadroomRatio       float32       `yaml:"headroom_ratio"`        // Control runs only while setpoint < ratio*Vin
	WatchdogTimeout     time.Duration `yaml:"watchdog_timeout"`
}

// TasksConfig contains periodic task timing.
type TasksConfig struct {
	Control   TaskConfig `yaml:"control"`
	Telemetry TaskConfig `yaml:"telemetry"`
	Clock     TaskConfig `yaml:"clock"`
}

// TaskConfig describes one periodic task loop.
type TaskConfig struct {
	Startup  time.Duration `yaml:"startup"`
	Period   time.Duration `yaml:"period"`
	Trailing time.Duration `yaml:"trailing"`
}

// MetricsConfig contains the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // Empty disables the endpoint
}

// APIConfig contains the HTTP control API endpoint. It may share the
// metrics address.
type APIConfig struct {
	Listen string `yaml:"listen"` // Empty disables the API
}

// StoreConfig contains telemetry history persistence.
type StoreConfig struct {
	Path     string        `yaml:"path"`      // Badger directory; empty disables history
	InMemory bool          `yaml:"in_memory"` // Keep history in memory only
	Interval time.Duration `yaml:"interval"`  // Insertion period of the latest sample
}

// MonitorConfig contains telemetry monitor display parameters.
type MonitorConfig struct {
	Window           time.Duration `yaml:"window"`             // Time window of records kept for display
	MaxDisplayPoints int           `yaml:"max_display_points"` // Plot decimation limit
}

// PlantConfig contains simulated buck converter parameters.
type PlantConfig struct {
	InputVoltage float32       `yaml:"input_voltage"`  // V
	Setpoint     float32       `yaml:"setpoint"`       // Reference knob position (V)
	LoadOhms     float32       `yaml:"load_ohms"`      // Resistive load
	TimeConstant time.Duration `yaml:"time_constant"`  // Output filter time constant
	NoiseLevel   float32       `yaml:"noise_level"`    // ADC noise (codes)
	StartPressed bool          `yaml:"start_pressed"`  // Press start on boot
	RTCFailEvery int           `yaml:"rtc_fail_every"` // Inject an RTC read failure every N reads (0 = never)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "",
			BaudRate: 9600,
		},
		Signal: SignalConfig{
			MaxADC:          4095,
			MaxVoltage:      10,
			MaxCurrentMA:    1000,
			VoltageGain:     0.0060,
			CurrentGain:     0.6300,
			InputGain:       0.0045,
			OutputCoupling:  CouplingDC,
			CurrentCoupling: CouplingDC,
			DCPeriodSamples: 668,
			FilterSize:      10,
			CeilingRatio:    0.95,
		},
		Controller: ControllerConfig{
			Type: ControllerPI,
			PI: PIConfig{
				B0: 0.063288,
				B1: -0.060934,
				A1: -1.0,
			},
			NN: NNConfig{
				Eta:  0.01,
				Seed: 12345,
			},
		},
		Core: CoreConfig{
			TickPeriod:          50 * time.Microsecond,
			ConversionTimeout:   20 * time.Microsecond,
			MaxConversionFaults: 100,
			HeadroomRatio:       0.975,
			WatchdogTimeout:     500 * time.Millisecond,
		},
		Tasks: TasksConfig{
			Control: TaskConfig{
				Startup:  10 * time.Millisecond,
				Period:   1 * time.Millisecond,
				Trailing: 1 * time.Millisecond,
			},
			Telemetry: TaskConfig{
				Startup:  10 * time.Millisecond,
				Period:   4 * time.Second,
				Trailing: 1 * time.Millisecond,
			},
			Clock: TaskConfig{
				Startup:  10 * time.Millisecond,
				Period:   1 * time.Millisecond,
				Trailing: 1 * time.Millisecond,
			},
		},
		Metrics: MetricsConfig{
			Listen: ":9100",
		},
		API: APIConfig{
			Listen: ":9100",
		},
		Store: StoreConfig{
			Interval: 5 * time.Second,
		},
		Plant: PlantConfig{
			InputVoltage: 12,
			Setpoint:     5,
			LoadOhms:     50,
			TimeConstant: 2 * time.Millisecond,
			NoiseLevel:   2,
		},
		Monitor: MonitorConfig{
			Window:           10 * time.Minute,
			MaxDisplayPoints: 1000,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects values the core cannot run with.
func (c *Config) Validate() error {
	switch c.Controller.Type {
	case ControllerPI, ControllerNeuralNet:
	default:
		return fmt.Errorf("unknown controller type %q", c.Controller.Type)
	}
	for _, coupling := range []string{c.Signal.OutputCoupling, c.Signal.CurrentCoupling} {
		if coupling != CouplingAC && coupling != CouplingDC {
			return fmt.Errorf("unknown coupling %q", coupling)
		}
	}
	if c.Signal.FilterSize <= 0 {
		return fmt.Errorf("filter size must be positive, got %d", c.Signal.FilterSize)
	}
	if c.Signal.DCPeriodSamples <= 0 {
		return fmt.Errorf("dc period must be positive, got %d", c.Signal.DCPeriodSamples)
	}
	if c.Store.Interval < 0 {
		return fmt.Errorf("store interval must not be negative, got %s", c.Store.Interval)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Signal.MaxADC == 0 {
		c.Signal.MaxADC = def.Signal.MaxADC
	}
	if c.Signal.MaxVoltage == 0 {
		c.Signal.MaxVoltage = def.Signal.MaxVoltage
	}
	if c.Signal.MaxCurrentMA == 0 {
		c.Signal.MaxCurrentMA = def.Signal.MaxCurrentMA
	}
	if c.Signal.VoltageGain == 0 {
		c.Signal.VoltageGain = def.Signal.VoltageGain
	}
	if c.Signal.CurrentGain == 0 {
		c.Signal.CurrentGain = def.Signal.CurrentGain
	}
	if c.Signal.InputGain == 0 {
		c.Signal.InputGain = def.Signal.InputGain
	}
	if c.Signal.OutputCoupling == "" {
		c.Signal.OutputCoupling = def.Signal.OutputCoupling
	}
	if c.Signal.CurrentCoupling == "" {
		c.Signal.CurrentCoupling = def.Signal.CurrentCoupling
	}
	if c.Signal.DCPeriodSamples == 0 {
		c.Signal.DCPeriodSamples = def.Signal.DCPeriodSamples
	}
	if c.Signal.FilterSize == 0 {
		c.Signal.FilterSize = def.Signal.FilterSize
	}
	if c.Signal.CeilingRatio == 0 {
		c.Signal.CeilingRatio = def.Signal.CeilingRatio
	}

	if c.Controller.Type == "" {
		c.Controller.Type = def.Controller.Type
	}
	if c.Controller.PI == (PIConfig{}) {
		c.Controller.PI = def.Controller.PI
	}
	if c.Controller.NN.Eta == 0 {
		c.Controller.NN.Eta = def.Controller.NN.Eta
	}

	if c.Core.TickPeriod == 0 {
		c.Core.TickPeriod = def.Core.TickPeriod
	}
	if c.Core.ConversionTimeout == 0 {
		c.Core.ConversionTimeout = def.Core.ConversionTimeout
	}
	if c.Core.MaxConversionFaults == 0 {
		c.Core.MaxConversionFaults = def.Core.MaxConversionFaults
	}
	if c.Core.HeadroomRatio == 0 {
		c.Core.HeadroomRatio = def.Core.HeadroomRatio
	}
	if c.Core.WatchdogTimeout == 0 {
		c.Core.WatchdogTimeout = def.Core.WatchdogTimeout
	}

	if c.Store.Interval == 0 {
		c.Store.Interval = def.Store.Interval
	}

	c.Tasks.Control.fill(def.Tasks.Control)
	c.Tasks.Telemetry.fill(def.Tasks.Telemetry)
	c.Tasks.Clock.fill(def.Tasks.Clock)

	if c.Plant.InputVoltage == 0 {
		c.Plant.InputVoltage = def.Plant.InputVoltage
	}
	if c.Plant.LoadOhms == 0 {
		c.Plant.LoadOhms = def.Plant.LoadOhms
	}
	if c.Plant.TimeConstant == 0 {
		c.Plant.TimeConstant = def.Plant.TimeConstant
	}

	if c.Monitor.Window == 0 {
		c.Monitor.Window = def.Monitor.Window
	}
	if c.Monitor.MaxDisplayPoints == 0 {
		c.Monitor.MaxDisplayPoints = def.Monitor.MaxDisplayPoints
	}
}

func (t *TaskConfig) fill(def TaskConfig) {
	if t.Startup == 0 {
		t.Startup = def.Startup
	}
	if t.Period == 0 {
		t.Period = def.Period
	}
	if t.Trailing == 0 {
		t.Trailing = def.Trailing
	}
}
