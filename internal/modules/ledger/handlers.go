package ledger

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// Handler serves the trade listing endpoints
type Handler struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandler creates a ledger handler
func NewHandler(repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetTrades handles GET / - paginated unified trade listing
func (h *Handler) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 1000 {
		http.Error(w, "Invalid limit. Must be 1-1000", http.StatusBadRequest)
		return
	}

	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "entry_date"
	}
	sortDesc := r.URL.Query().Get("sort_desc") != "false"
	status := r.URL.Query().Get("status")

	page, err := h.repo.GetPaginatedTrades(skip, limit, sortBy, sortDesc, status)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list trades")
		http.Error(w, "Failed to retrieve trades", http.StatusInternalServerError)
		return
	}

	writeJSON(w, page)
}

// HandleGetOpenPositions handles GET /open - all open rows
func (h *Handler) HandleGetOpenPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.repo.GetOpenPositions()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get open positions")
		http.Error(w, "Failed to retrieve open positions", http.StatusInternalServerError)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol != "" {
		filtered := positions[:0]
		for _, p := range positions {
			if p.Symbol == symbol {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}

	if positions == nil {
		positions = []OpenPosition{}
	}
	writeJSON(w, positions)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
