package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, float32(4095), cfg.Signal.MaxADC)
	assert.Equal(t, float32(10), cfg.Signal.MaxVoltage)
	assert.Equal(t, float32(1000), cfg.Signal.MaxCurrentMA)
	assert.Equal(t, 668, cfg.Signal.DCPeriodSamples)
	assert.Equal(t, 10, cfg.Signal.FilterSize)
	assert.Equal(t, float32(0.95), cfg.Signal.CeilingRatio)
	assert.Equal(t, ControllerPI, cfg.Controller.Type)
	assert.Equal(t, float32(0.063288), cfg.Controller.PI.B0)
	assert.Equal(t, float32(-0.060934), cfg.Controller.PI.B1)
	assert.Equal(t, float32(-1.0), cfg.Controller.PI.A1)
	assert.Equal(t, float32(0.01), cfg.Controller.NN.Eta)
	assert.False(t, cfg.Controller.NN.KeepWeightsOnReset)
	assert.Equal(t, 1*time.Millisecond, cfg.Tasks.Control.Period)
	assert.Equal(t, 4*time.Second, cfg.Tasks.Telemetry.Period)
	assert.Equal(t, 10*time.Minute, cfg.Monitor.Window)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, ControllerPI, cfg.Controller.Type)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyS4"
  baud_rate: 115200

signal:
  output_coupling: ac
  dc_period_samples: 400
  filter_size: 8

controller:
  type: nn
  nn:
    eta: 0.005
    seed: 42
    keep_weights_on_reset: true

core:
  tick_period: 100us
  max_conversion_faults: 10

tasks:
  telemetry:
    period: 2s
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyS4", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, CouplingAC, cfg.Signal.OutputCoupling)
	assert.Equal(t, CouplingDC, cfg.Signal.CurrentCoupling)
	assert.Equal(t, 400, cfg.Signal.DCPeriodSamples)
	assert.Equal(t, 8, cfg.Signal.FilterSize)
	assert.Equal(t, ControllerNeuralNet, cfg.Controller.Type)
	assert.Equal(t, float32(0.005), cfg.Controller.NN.Eta)
	assert.Equal(t, int64(42), cfg.Controller.NN.Seed)
	assert.True(t, cfg.Controller.NN.KeepWeightsOnReset)
	assert.Equal(t, 100*time.Microsecond, cfg.Core.TickPeriod)
	assert.Equal(t, 10, cfg.Core.MaxConversionFaults)
	assert.Equal(t, 2*time.Second, cfg.Tasks.Telemetry.Period)
	assert.Equal(t, 1*time.Millisecond, cfg.Tasks.Telemetry.Trailing) // default
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_UnknownController(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("controller:\n  type: pid\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, float32(0.063288), cfg.Controller.PI.B0)
	assert.Equal(t, 50*time.Microsecond, cfg.Core.TickPeriod)
	assert.Equal(t, 1000, cfg.Monitor.MaxDisplayPoints)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Controller.Type = ControllerNeuralNet

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, ControllerNeuralNet, loaded.Controller.Type)
	assert.Equal(t, cfg.Tasks, loaded.Tasks)
}

func TestLoad_ConversionFaultLimit(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"zero maps to default", "core:\n  max_conversion_faults: 0\n", 100},
		{"negative disables", "core:\n  max_conversion_faults: -1\n", -1},
		{"explicit", "core:\n  max_conversion_faults: 7\n", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := t.TempDir() + "/config.yaml"
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Core.MaxConversionFaults)
		})
	}
}

func TestLoad_APIWithoutMetrics(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	yamlContent := `
metrics:
  listen: ""
api:
  listen: "127.0.0.1:8080"
store:
  path: /var/lib/buck
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.Equal(t, "127.0.0.1:8080", cfg.API.Listen)
	assert.Equal(t, "/var/lib/buck", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Store.Interval)
}

func TestValidate_NegativeStoreInterval(t *testing.T) {
	cfg := Default()
	cfg.Store.Interval = -time.Second
	assert.Error(t, cfg.Validate())
}
