package ledger

import (
	"fmt"
	"sort"
	"time"
)

// UnifiedTrade is the merged read model over open positions and
// closed records used by the listing API. Open rows report their cost
// basis as entry price and no exit; closed rows carry the realized
// side of the story.
type UnifiedTrade struct {
	ID           string      `json:"id"` // "OPEN_<id>" or "CLOSED_<id>"
	OriginalID   int64       `json:"original_id"`
	Source       string      `json:"source_table"`
	Symbol       string      `json:"trading_symbol"`
	Side         Side        `json:"side"`
	Qty          int64       `json:"qty"`
	EntryPrice   float64     `json:"entry_price"`
	ExitPrice    *float64    `json:"exit_price,omitempty"`
	EntryDate    time.Time   `json:"entry_date"`
	ExitDate     *time.Time  `json:"exit_date,omitempty"`
	Pnl          float64     `json:"pnl"`
	Status       string      `json:"status"` // OPEN, PARTIAL, CLOSED
	ClosureType  ClosureType `json:"closure_type,omitempty"`
	Exchange     string      `json:"exchange,omitempty"`
	Product      string      `json:"product,omitempty"`
	StrategyType string      `json:"strategy_type"`
	IsBasket     bool        `json:"is_basket"`
	StopLoss     *float64    `json:"stop_loss,omitempty"`
}

// PaginatedTrades is one page of the unified listing
type PaginatedTrades struct {
	Data     []UnifiedTrade `json:"data"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// GetPaginatedTrades returns a sorted, filtered page over the merged
// open + closed view. status filters to OPEN or CLOSED (CLOSED
// includes still-partial records); sortBy accepts entry_date,
// exit_date, pnl, or entry_price.
func (r *Repository) GetPaginatedTrades(skip, limit int, sortBy string, sortDesc bool, status string) (*PaginatedTrades, error) {
	if limit <= 0 {
		limit = 50
	}

	unified, err := r.unifiedTrades()
	if err != nil {
		return nil, err
	}

	if status != "" {
		filtered := unified[:0]
		for _, t := range unified {
			switch status {
			case "CLOSED":
				if t.Status == "CLOSED" || t.Status == "PARTIAL" {
					filtered = append(filtered, t)
				}
			default:
				if t.Status == status {
					filtered = append(filtered, t)
				}
			}
		}
		unified = filtered
	}

	sortUnified(unified, sortBy, sortDesc)

	total := len(unified)
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}

	return &PaginatedTrades{
		Data:     unified[skip:end],
		Total:    total,
		Page:     skip/limit + 1,
		PageSize: limit,
	}, nil
}

func (r *Repository) unifiedTrades() ([]UnifiedTrade, error) {
	var unified []UnifiedTrade

	closed, err := r.GetClosedRecords(0)
	if err != nil {
		return nil, err
	}
	for _, rec := range closed {
		status := "CLOSED"
		if rec.ClosureType.IsPartial() {
			status = "PARTIAL"
		}
		exitDate := rec.ExitDate
		exitPrice := rec.ExitPrice
		unified = append(unified, UnifiedTrade{
			ID:           fmt.Sprintf("CLOSED_%d", rec.ID),
			OriginalID:   rec.ID,
			Source:       "CLOSED",
			Symbol:       rec.Symbol,
			Side:         rec.Side,
			Qty:          rec.Qty,
			EntryPrice:   rec.EntryPrice,
			ExitPrice:    &exitPrice,
			EntryDate:    rec.EntryDate,
			ExitDate:     &exitDate,
			Pnl:          rec.Pnl,
			Status:       status,
			ClosureType:  rec.ClosureType,
			Exchange:     rec.Exchange,
			Product:      rec.Product,
			StrategyType: rec.StrategyType,
			IsBasket:     rec.ClosureType == ClosureFullBasket || rec.ClosureType == ClosurePartialBasket,
		})
	}

	open, err := r.GetOpenPositions()
	if err != nil {
		return nil, err
	}
	for _, pos := range open {
		unified = append(unified, UnifiedTrade{
			ID:           fmt.Sprintf("OPEN_%d", pos.ID),
			OriginalID:   pos.ID,
			Source:       "OPEN",
			Symbol:       pos.Symbol,
			Side:         pos.Side,
			Qty:          pos.Qty,
			EntryPrice:   pos.AvgPrice,
			EntryDate:    pos.EntryDate,
			Status:       "OPEN",
			Exchange:     pos.Exchange,
			Product:      pos.Product,
			StrategyType: pos.StrategyType,
			IsBasket:     pos.IsBasket,
			StopLoss:     pos.StopLoss,
		})
	}

	return unified, nil
}

func sortUnified(trades []UnifiedTrade, sortBy string, desc bool) {
	less := func(i, j int) bool { return trades[i].EntryDate.Before(trades[j].EntryDate) }

	switch sortBy {
	case "exit_date":
		less = func(i, j int) bool {
			ti, tj := time.Time{}, time.Time{}
			if trades[i].ExitDate != nil {
				ti = *trades[i].ExitDate
			}
			if trades[j].ExitDate != nil {
				tj = *trades[j].ExitDate
			}
			return ti.Before(tj)
		}
	case "pnl":
		less = func(i, j int) bool { return trades[i].Pnl < trades[j].Pnl }
	case "entry_price":
		less = func(i, j int) bool { return trades[i].EntryPrice < trades[j].EntryPrice }
	}

	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}

	sort.SliceStable(trades, less)
}
