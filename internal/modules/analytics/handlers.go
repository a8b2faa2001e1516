package analytics

import (
	"encoding/json"
	"net/http"
)

// Handler exposes realized-performance analytics over HTTP
type Handler struct {
	service *Service
	equity  *EquityTracker
}

// NewHandler creates an analytics handler
func NewHandler(service *Service, equity *EquityTracker) *Handler {
	return &Handler{service: service, equity: equity}
}

// HandleGetSummary returns realized performance statistics
// GET /api/analytics/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summarize()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleGetEquity returns the daily equity curve with EMAs
// GET /api/analytics/equity
func (h *Handler) HandleGetEquity(w http.ResponseWriter, r *http.Request) {
	history, err := h.equity.History()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []DailyEquity{}
	}
	writeJSON(w, http.StatusOK, history)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
