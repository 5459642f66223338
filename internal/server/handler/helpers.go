// Package handler serves the bot's read-only status API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a non-negative integer query parameter, clamped to max.
func queryInt(r *http.Request, name string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// parseListOpts reads limit, offset, since and until (RFC3339) from the
// query string. Malformed times are reported as errors.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	limit := queryInt(r, "limit", defaultLimit, maxLimit)
	if limit == 0 {
		limit = defaultLimit
	}
	opts := domain.ListOpts{
		Limit:  limit,
		Offset: queryInt(r, "offset", 0, 0),
	}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, err
		}
		t = t.UTC()
		*dst = &t
	}
	return opts, nil
}
