package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Side represents the direction of an open position
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"

	// SideBasket marks composite rows in open_positions; basket rows
	// have no direction of their own.
	SideBasket Side = "BASKET"
)

// IsValid checks if the side is a tradable direction
func (s Side) IsValid() bool {
	return s == SideLong || s == SideShort
}

// Opposite returns the flipped direction
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// PnlSign returns +1 for LONG and -1 for SHORT, the multiplier on
// (exit - entry) when realizing a closure.
func (s Side) PnlSign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// TxnType represents the direction of a fill (BUY or SELL)
type TxnType string

const (
	TxnBuy  TxnType = "BUY"
	TxnSell TxnType = "SELL"
)

// IsValid checks if the transaction type is valid
func (t TxnType) IsValid() bool {
	return t == TxnBuy || t == TxnSell
}

// OpensSide returns the position side a fresh fill of this type opens
func (t TxnType) OpensSide() Side {
	if t == TxnSell {
		return SideShort
	}
	return SideLong
}

// TxnTypeFromString creates a TxnType from a string (case-insensitive)
func TxnTypeFromString(value string) (TxnType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return TxnBuy, nil
	case "SELL":
		return TxnSell, nil
	default:
		return "", fmt.Errorf("invalid transaction type: %q", value)
	}
}

// ClosureType classifies a closed record
type ClosureType string

const (
	ClosureFull          ClosureType = "FULL"
	ClosurePartial       ClosureType = "PARTIAL"
	ClosurePartialBasket ClosureType = "PARTIAL_BASKET"
	ClosureFullBasket    ClosureType = "FULL_BASKET"
)

// IsPartial reports whether the record can still absorb later exits
func (c ClosureType) IsPartial() bool {
	return c == ClosurePartial || c == ClosurePartialBasket
}

// Strategy classification defaults. The engine guesses from the
// symbol shape; the value is a convenience only and users may
// override it at any time.
const (
	StrategyTrending = "TRENDING"
	StrategySideways = "SIDEWAYS"
)

// GuessStrategyType classifies option-shaped symbols (CE/PE suffix)
// as SIDEWAYS and everything else as TRENDING.
func GuessStrategyType(symbol string) string {
	if strings.HasSuffix(symbol, "CE") || strings.HasSuffix(symbol, "PE") {
		return StrategySideways
	}
	return StrategyTrending
}

// OpenPosition is a row in open_positions: either a standalone
// position (one per symbol) or a basket aggregate (IsBasket = true).
//
// For standalone rows AvgPrice is the quantity-weighted cost basis
// and MaxExposure the peak quantity. For basket rows Invested holds
// total capital, Qty the lot count, MaxExposure the peak invested
// notional, and AvgPrice is derived (Invested / Qty) at read time.
type OpenPosition struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Qty          int64     `json:"qty"`
	AvgPrice     float64   `json:"avg_price"`
	Invested     float64   `json:"invested,omitempty"`
	EntryDate    time.Time `json:"entry_date"`
	Exchange     string    `json:"exchange,omitempty"`
	Product      string    `json:"product,omitempty"`
	MaxExposure  float64   `json:"max_exposure"`
	StrategyType string    `json:"strategy_type"`
	IsBasket     bool      `json:"is_basket"`
	RealizedPnl  float64   `json:"realized_pnl,omitempty"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
}

// Notional returns the capital currently tied up in the position
func (p *OpenPosition) Notional() float64 {
	if p.IsBasket {
		return p.Invested
	}
	return float64(p.Qty) * p.AvgPrice
}

// PerLotPrice derives the basket per-lot price. Qty is kept >= 1 for
// basket rows, so the division is safe.
func (p *OpenPosition) PerLotPrice() float64 {
	if p.IsBasket && p.Qty > 0 {
		return p.Invested / float64(p.Qty)
	}
	return p.AvgPrice
}

// ClosedRecord is a realization row in closed_records. At most one
// record with a partial closure type exists per symbol; later partial
// exits merge into it until the lifecycle fully closes.
type ClosedRecord struct {
	ID           int64       `json:"id"`
	Symbol       string      `json:"symbol"`
	Side         Side        `json:"side"`
	Qty          int64       `json:"qty"`
	EntryPrice   float64     `json:"entry_price"`
	ExitPrice    float64     `json:"exit_price"`
	EntryDate    time.Time   `json:"entry_date"`
	ExitDate     time.Time   `json:"exit_date"`
	Pnl          float64     `json:"pnl"`
	ClosureType  ClosureType `json:"closure_type"`
	Exchange     string      `json:"exchange,omitempty"`
	Product      string      `json:"product,omitempty"`
	StrategyType string      `json:"strategy_type"`
	BasketID     *int64      `json:"basket_id,omitempty"`
}

// BasketConstituent is a leg of a basket. It is owned exclusively by
// its parent open_positions row; deleting the last constituent
// triggers basket closure.
type BasketConstituent struct {
	ID        int64     `json:"id"`
	BasketID  int64     `json:"basket_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Qty       int64     `json:"qty"`
	AvgPrice  float64   `json:"avg_price"`
	EntryDate time.Time `json:"entry_date"`
	Exchange  string    `json:"exchange,omitempty"`
	Product   string    `json:"product,omitempty"`
}

// OrderFill is a confirmed execution received from the broker or
// entered manually. Batches handed to the engine must be sorted
// ascending by Timestamp (ties broken by arrival order).
type OrderFill struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      TxnType   `json:"side"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange,omitempty"`
	Product   string    `json:"product,omitempty"`
}

// Validate checks fill fields and normalizes the symbol
func (f *OrderFill) Validate() error {
	if strings.TrimSpace(f.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !f.Side.IsValid() {
		return fmt.Errorf("invalid side: %q", f.Side)
	}
	if f.Qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", f.Qty)
	}
	if f.Price < 0 {
		return fmt.Errorf("price cannot be negative, got %f", f.Price)
	}

	f.Symbol = strings.ToUpper(strings.TrimSpace(f.Symbol))

	return nil
}
