// Package api exposes converter status and remote start/stop over HTTP.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/itohio/gobuck/pkg/core"
	"github.com/itohio/gobuck/pkg/store"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// Panel presses the converter buttons.
type Panel interface {
	PressStart()
	PressStop()
}

// History returns persisted samples, newest first.
type History interface {
	Last(n int) ([]store.Entry, error)
}

// Status is the JSON body of GET /api/status.
type Status struct {
	Running          bool    `json:"running"`
	Setpoint         float32 `json:"setpoint_volts"`
	Output           float32 `json:"output_volts"`
	Current          float32 `json:"load_current_milliamps"`
	Input            float32 `json:"input_volts"`
	Duty             float32 `json:"duty"`
	Clock            string  `json:"clock"`
	Ticks            uint64  `json:"ticks"`
	ConversionFaults int     `json:"conversion_faults"`
	ControllerResets uint64  `json:"controller_resets"`
	ClockFailures    uint64  `json:"clock_failures"`
}

// Server serves the REST endpoints for one scheduler.
type Server struct {
	sched   *core.Scheduler
	panel   Panel
	history History
}

// New creates a server. panel may be nil, which disables /api/run.
func New(sched *core.Scheduler, panel Panel) *Server {
	return &Server{sched: sched, panel: panel}
}

// WithHistory enables /api/history.
func (s *Server) WithHistory(h History) *Server {
	s.history = h
	return s
}

// Router returns a router with the API when s is not nil and the
// Prometheus endpoint when metrics is not nil.
func Router(s *Server, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
	if s != nil {
		s.LoadAPI(r)
	}
	return r
}

// Listeners maps each non-empty listen address to its handler. The API and
// metrics share one router when they use the same address.
func Listeners(apiListen string, s *Server, metricsListen string, metrics http.Handler) map[string]http.Handler {
	if apiListen == "" || s == nil {
		apiListen, s = "", nil
	}
	if metricsListen == "" || metrics == nil {
		metricsListen, metrics = "", nil
	}

	result := make(map[string]http.Handler)
	switch {
	case apiListen != "" && apiListen == metricsListen:
		result[apiListen] = Router(s, metrics)
	default:
		if apiListen != "" {
			result[apiListen] = Router(s, nil)
		}
		if metricsListen != "" {
			result[metricsListen] = Router(nil, metrics)
		}
	}
	return result
}

// LoadAPI registers all REST endpoints.
func (s *Server) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api").Subrouter()
	sr.HandleFunc("/status", s.status).Methods("GET")
	sr.HandleFunc("/telemetry", s.telemetryLine).Methods("GET")
	sr.HandleFunc("/run/{action}", s.run).Methods("POST")
	sr.HandleFunc("/history", s.historyRows).Methods("GET")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snap := s.sched.State().Snapshot()
	body := Status{
		Running:          snap.Run == core.Running,
		Setpoint:         snap.Setpoint,
		Output:           snap.Output,
		Current:          snap.Current,
		Input:            snap.Input,
		Duty:             snap.Duty,
		Clock:            telemetry.Clock(snap.Clock).String(),
		Ticks:            snap.Ticks,
		ConversionFaults: s.sched.Sampler().Faults(),
		ControllerResets: s.sched.Control().Resets(),
		ClockFailures:    s.sched.Clock().Failures(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode status: %v", err)
	}
}

func (s *Server) telemetryLine(w http.ResponseWriter, r *http.Request) {
	line := telemetry.Format(s.sched.Telemetry().Record())
	w.Header().Set("Content-Type", "text/plain")
	w.Write(append(line, '\n'))
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if s.panel == nil {
		http.Error(w, "remote control disabled", http.StatusForbidden)
		return
	}
	cmd, err := telemetry.ParseCommand(mux.Vars(r)["action"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch cmd {
	case telemetry.CommandStart:
		s.panel.PressStart()
	case telemetry.CommandStop:
		s.panel.PressStop()
	}
	log.Printf("Remote %s requested", cmd)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) historyRows(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history not configured", http.StatusNotFound)
		return
	}
	n := store.DefaultHistory
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	entries, err := s.history.Last(n)
	if err != nil {
		log.Printf("Failed to read history: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		log.Printf("Failed to encode history: %v", err)
	}
}
