package sync

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dhanvin/tradebook/internal/modules/ledger"
)

// Handler serves the sync endpoints
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a sync handler
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "sync").Logger(),
	}
}

// HandleSync handles POST /sync - run a full broker sync now
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Sync failed")
		http.Error(w, "Sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ManualFill is a hand-entered execution
type ManualFill struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange"`
	Product   string    `json:"product"`
}

// HandleManualFills handles POST /fills - reconcile manually entered fills
func (h *Handler) HandleManualFills(w http.ResponseWriter, r *http.Request) {
	var body []ManualFill
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "No fills provided", http.StatusBadRequest)
		return
	}

	fills := make([]ledger.OrderFill, 0, len(body))
	for _, m := range body {
		side, err := ledger.TxnTypeFromString(m.Side)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		orderID := m.OrderID
		if orderID == "" {
			// Manual entries have no broker order id; a generated one
			// still gives the dedup guard a durable key.
			orderID = "MANUAL-" + uuid.NewString()
		}
		fills = append(fills, ledger.OrderFill{
			OrderID:   orderID,
			Symbol:    m.Symbol,
			Side:      side,
			Qty:       m.Qty,
			Price:     m.Price,
			Timestamp: ts,
			Exchange:  m.Exchange,
			Product:   m.Product,
		})
	}

	result, err := h.service.Reconcile(fills)
	if err != nil {
		h.log.Error().Err(err).Msg("Manual fill reconciliation failed")
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
