package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/openplay/sportmatch/internal/database"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	db      *database.PostgresDB
	redisDB *database.RedisDB
}

func NewHealthHandler(db *database.PostgresDB, redisDB *database.RedisDB) *HealthHandler {
	return &HealthHandler{db: db, redisDB: redisDB}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

// Ready reports whether the server can actually serve traffic: both
// Postgres and Redis must answer a ping.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{
		"postgres": "ok",
		"redis":    "ok",
	}

	if err := h.db.Health(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redisDB.Health(ctx); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	resp := ReadyResponse{Status: "ready", Checks: checks}
	if status != http.StatusOK {
		resp.Status = "unavailable"
	}
	writeJSON(w, status, resp)
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
	})
}
