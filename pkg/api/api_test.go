package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/controller"
	"github.com/itohio/gobuck/pkg/core"
	"github.com/itohio/gobuck/pkg/hal"
	"github.com/itohio/gobuck/pkg/signal"
	"github.com/itohio/gobuck/pkg/store"
	"github.com/itohio/gobuck/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) (*core.Scheduler, *hal.SimButtons) {
	t.Helper()

	cfg := config.Default()
	cfg.Plant.NoiseLevel = 0

	cond, err := signal.NewConditioner(cfg.Signal)
	require.NoError(t, err)
	ctrl, err := controller.FromConfig(cfg.Controller, cfg.Signal)
	require.NoError(t, err)

	plant := hal.NewPlant(cfg.Plant, cfg.Signal, cfg.Core.TickPeriod)
	buttons := &hal.SimButtons{}
	sched, err := core.New(cfg, cond, ctrl, core.Peripherals{
		ADC:        plant,
		PWM:        plant,
		Buttons:    buttons,
		Indicators: &hal.SimIndicators{},
		RTC:        hal.NewSimRTC(),
		Sender:     hal.NewWriterSender(&bytes.Buffer{}),
		Watchdog:   hal.NewSoftWatchdog(cfg.Core.WatchdogTimeout),
	}, nil)
	require.NoError(t, err)
	return sched, buttons
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestStatus_Idle(t *testing.T) {
	sched, buttons := newScheduler(t)
	r := Router(New(sched, buttons), nil)

	rec := do(t, r, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Running)
	assert.Equal(t, "00:00:00", st.Clock)
	assert.Zero(t, st.Duty)
}

func TestRun_StartThenTelemetry(t *testing.T) {
	sched, buttons := newScheduler(t)
	r := Router(New(sched, buttons), nil)

	rec := do(t, r, http.MethodGet, "/api/telemetry")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OFF,00:00:00\n", rec.Body.String())

	rec = do(t, r, http.MethodPost, "/api/run/start")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, sched.Sampler().Tick(context.Background()))
	assert.Equal(t, core.Running, sched.State().RunState())

	rec = do(t, r, http.MethodGet, "/api/telemetry")
	assert.False(t, strings.HasPrefix(rec.Body.String(), "OFF"))

	rec = do(t, r, http.MethodPost, "/api/run/STOP")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, sched.Sampler().Tick(context.Background()))
	assert.Equal(t, core.Idle, sched.State().RunState())
}

func TestRun_UnknownAction(t *testing.T) {
	sched, buttons := newScheduler(t)
	r := Router(New(sched, buttons), nil)

	rec := do(t, r, http.MethodPost, "/api/run/reboot")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, buttons.Start())
	assert.False(t, buttons.Stop())
}

func TestRun_Disabled(t *testing.T) {
	sched, _ := newScheduler(t)
	r := Router(New(sched, nil), nil)

	rec := do(t, r, http.MethodPost, "/api/run/start")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRun_WrongMethod(t *testing.T) {
	sched, buttons := newScheduler(t)
	r := Router(New(sched, buttons), nil)

	rec := do(t, r, http.MethodGet, "/api/run/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	sched, buttons := newScheduler(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("buck_samples_total 0\n"))
	})
	r := Router(New(sched, buttons), metrics)

	rec := do(t, r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buck_samples_total")
}

func TestHistory(t *testing.T) {
	sched, buttons := newScheduler(t)
	st, err := store.Open(config.StoreConfig{InMemory: true})
	require.NoError(t, err)
	defer st.Close()

	for i := 0; i < 40; i++ {
		_, err := st.Insert(telemetry.Sample{
			Timestamp: time.Now(),
			Record:    telemetry.Record{Running: true, Output: 5, Clock: telemetry.Clock{Seconds: uint8(i)}},
		})
		require.NoError(t, err)
	}
	r := Router(New(sched, buttons).WithHistory(st), nil)

	rec := do(t, r, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []store.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, store.DefaultHistory)
	assert.Equal(t, "00:00:39", rows[0].Uptime)

	rec = do(t, r, http.MethodGet, "/api/history?n=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 5)

	for _, bad := range []string{"0", "-3", "abc"} {
		rec = do(t, r, http.MethodGet, "/api/history?n="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "n=%s", bad)
	}
}

func TestHistory_NotConfigured(t *testing.T) {
	sched, buttons := newScheduler(t)
	r := Router(New(sched, buttons), nil)

	rec := do(t, r, http.MethodGet, "/api/history?n=30")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListeners(t *testing.T) {
	sched, buttons := newScheduler(t)
	srv := New(sched, buttons)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("buck_samples_total 0\n"))
	})

	t.Run("api without metrics", func(t *testing.T) {
		l := Listeners(":8080", srv, "", metrics)
		require.Len(t, l, 1)
		require.Contains(t, l, ":8080")
		assert.Equal(t, http.StatusOK, do(t, l[":8080"], http.MethodGet, "/api/status").Code)
		assert.Equal(t, http.StatusNotFound, do(t, l[":8080"], http.MethodGet, "/metrics").Code)
	})

	t.Run("shared address", func(t *testing.T) {
		l := Listeners(":9100", srv, ":9100", metrics)
		require.Len(t, l, 1)
		assert.Equal(t, http.StatusOK, do(t, l[":9100"], http.MethodGet, "/api/status").Code)
		assert.Equal(t, http.StatusOK, do(t, l[":9100"], http.MethodGet, "/metrics").Code)
	})

	t.Run("separate addresses", func(t *testing.T) {
		l := Listeners(":8080", srv, ":9100", metrics)
		require.Len(t, l, 2)
		assert.Equal(t, http.StatusNotFound, do(t, l[":9100"], http.MethodGet, "/api/status").Code)
		assert.Equal(t, http.StatusOK, do(t, l[":9100"], http.MethodGet, "/metrics").Code)
		assert.Equal(t, http.StatusOK, do(t, l[":8080"], http.MethodGet, "/api/status").Code)
	})

	t.Run("both disabled", func(t *testing.T) {
		assert.Empty(t, Listeners("", srv, ":9100", nil))
	})
}
