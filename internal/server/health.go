package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler reports listener liveness and database reachability.
type HealthHandler struct {
	db      *sql.DB
	started time.Time
}

// NewHealthHandler creates a health handler over the given database.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

// Routes returns the HTTP routes this handler serves.
func (h *HealthHandler) Routes() []string {
	return []string{"GET /health"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"database": "ok",
	}

	status := http.StatusOK
	if err := h.db.PingContext(r.Context()); err != nil {
		payload["status"] = "degraded"
		payload["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
