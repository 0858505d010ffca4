package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pinnedref/pinnedref/pkg/logger"
)

// Handler serves GET /api/v1/analytics.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewHandler accepts a nil aggregator for a process with analytics switched
// off; the endpoint then answers 404.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     logger.WithComponent("analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, any(nil)
	if h.aggregator == nil {
		status, body = http.StatusNotFound, map[string]string{"error": "analytics is disabled"}
	} else {
		body = h.aggregator.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
