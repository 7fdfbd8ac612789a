package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/tokenkeeper/internal/core/service"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Metrics serves MetricsPath. Nil disables it.
	Metrics     http.Handler
	MetricsPath string

	// Ready reports whether the store answers. Nil means always ready.
	Ready        func(context.Context) error
	ReadyTimeout time.Duration

	// Cleaner, when set, is served as JSON on /debug/cleaner.
	Cleaner func() service.CleanerStatus

	Logger logger.Logger
}

// NewRouter creates the operations router.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := logger.Component(cfg.Logger, "http")
	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				logger.L(r.Context()).Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, cfg.Metrics)
	}
	if cfg.Cleaner != nil {
		mux.HandleFunc("GET /debug/cleaner", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, cleanerView(cfg.Cleaner()))
		})
	}

	return Chain(mux, RequestID(log), Recover(), AccessLog())
}

type cleanerStatusView struct {
	State       string `json:"state"`
	Interval    string `json:"interval,omitempty"`
	LastRun     string `json:"last_run,omitempty"`
	LastResult  string `json:"last_result,omitempty"`
	LastDeleted int    `json:"last_deleted"`
	NextRun     string `json:"next_run,omitempty"`
	Cycles      uint64 `json:"cycles"`
}

func cleanerView(st service.CleanerStatus) cleanerStatusView {
	v := cleanerStatusView{
		State:       string(st.State),
		LastResult:  st.LastResult,
		LastDeleted: st.LastDeleted,
		Cycles:      st.Cycles,
	}
	if st.Interval > 0 {
		v.Interval = st.Interval.String()
	}
	if !st.LastRun.IsZero() {
		v.LastRun = st.LastRun.UTC().Format(time.RFC3339)
	}
	if !st.NextRun.IsZero() {
		v.NextRun = st.NextRun.UTC().Format(time.RFC3339)
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
