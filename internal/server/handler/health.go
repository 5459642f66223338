package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler reports liveness and dependency health.
type HealthHandler struct {
	mode     string
	paper    bool
	started  time.Time
	checks   map[string]Check
	lastScan func() time.Time
	logger   *slog.Logger
	now      func() time.Time
}

// NewHealthHandler creates a HealthHandler. lastScan may be nil.
func NewHealthHandler(mode string, paper bool, checks map[string]Check, lastScan func() time.Time, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:     mode,
		paper:    paper,
		started:  time.Now(),
		checks:   checks,
		lastScan: lastScan,
		logger:   logger,
		now:      time.Now,
	}
}

type healthResponse struct {
	Status        string            `json:"status"`
	Mode          string            `json:"mode"`
	PaperTrading  bool              `json:"paper_trading"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	LastScan      *time.Time        `json:"last_scan,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
	Timestamp     string            `json:"timestamp"`
}

// HealthCheck returns 200 when every check passes and 503 otherwise.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	now := h.now()
	resp := healthResponse{
		Status:        "ok",
		Mode:          h.mode,
		PaperTrading:  h.paper,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
	if h.lastScan != nil {
		if t := h.lastScan(); !t.IsZero() {
			resp.LastScan = &t
		}
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				h.logger.WarnContext(ctx, "handler: health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}
