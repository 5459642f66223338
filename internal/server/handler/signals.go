package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DecisionSource holds the recent evaluations.
type DecisionSource interface {
	RecentDecisions(limit int) []domain.DecisionRecord
}

// SignalStateSource holds the cross-asset memo and catalyst flag.
type SignalStateSource interface {
	Memo() domain.SignalMemo
	Catalyst() domain.CatalystFlag
}

// StreamReader reads the durable decision stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// SignalHandler serves recent decisions and signal state.
type SignalHandler struct {
	decisions DecisionSource
	state     SignalStateSource
	stream    StreamReader
	logger    *slog.Logger
}

// NewSignalHandler creates a SignalHandler. stream may be nil.
func NewSignalHandler(decisions DecisionSource, state SignalStateSource, stream StreamReader, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{decisions: decisions, state: state, stream: stream, logger: logger}
}

type signalsResponse struct {
	Decisions []domain.DecisionRecord `json:"decisions"`
	Memo      domain.SignalMemo       `json:"memo"`
	Catalyst  domain.CatalystFlag     `json:"catalyst"`
}

// ListSignals returns the most recent decisions and current signal state.
// GET /api/signals?limit=
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	recent := h.decisions.RecentDecisions(queryInt(r, "limit", 20, maxLimit))
	if recent == nil {
		recent = []domain.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, signalsResponse{
		Decisions: recent,
		Memo:      h.state.Memo(),
		Catalyst:  h.state.Catalyst(),
	})
}

type streamEntry struct {
	ID     string                `json:"id"`
	Record domain.DecisionRecord `json:"record"`
}

// ReadDecisionStream pages through edge decisions kept in the stream.
// Pass the last seen id as after; "0" starts from the beginning.
// GET /api/decisions?after=&limit=
func (h *SignalHandler) ReadDecisionStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusNotFound, "decision stream not configured")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.stream.StreamRead(r.Context(), domain.StreamDecisions, after, queryInt(r, "limit", defaultLimit, maxLimit))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read decision stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read decisions")
		return
	}

	entries := make([]streamEntry, 0, len(msgs))
	for _, m := range msgs {
		var rec domain.DecisionRecord
		if err := json.Unmarshal(m.Payload, &rec); err != nil {
			continue
		}
		entries = append(entries, streamEntry{ID: m.ID, Record: rec})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
