package basket

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler serves the basket endpoints
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a basket handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "basket").Logger(),
	}
}

// CreateRequest is the body of POST /
type CreateRequest struct {
	Name         string   `json:"name"`
	Symbols      []string `json:"symbols"`
	StrategyType string   `json:"strategy_type"`
}

// AddRequest is the body of POST /{basketID}/add
type AddRequest struct {
	Symbols []string `json:"symbols"`
}

// HandleCreate handles POST / - create a basket from standalone positions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	basket, err := h.service.Create(req.Name, req.Symbols, req.StrategyType)
	if err != nil {
		h.log.Error().Err(err).Str("basket", req.Name).Msg("Failed to create basket")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(basket)
}

// HandleAdd handles POST /{basketID}/add - extend a basket
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	basketID, err := strconv.ParseInt(chi.URLParam(r, "basketID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid basket id", http.StatusBadRequest)
		return
	}

	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	basket, err := h.service.Add(basketID, req.Symbols)
	if err != nil {
		h.log.Error().Err(err).Int64("basket_id", basketID).Msg("Failed to extend basket")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(basket)
}
