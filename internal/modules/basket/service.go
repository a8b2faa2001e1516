// Package basket creates and extends composite positions. A basket
// absorbs existing standalone positions into constituent legs under
// one aggregate row; from then on fills for those symbols reconcile
// against the basket, not a standalone position.
package basket

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dhanvin/tradebook/internal/events"
	"github.com/dhanvin/tradebook/internal/modules/ledger"
)

// LotSizer resolves the lot size of a symbol
type LotSizer interface {
	LotSize(symbol string) int64
}

// Service converts standalone positions into basket constituents.
// Every call runs under runLock, the same serialization boundary the
// sync pipeline uses, plus its own transaction, so a concurrent fill
// can never be reconciled against a position mid-conversion.
type Service struct {
	db      *sql.DB
	lots    LotSizer
	events  *events.Manager
	runLock *sync.Mutex
	log     zerolog.Logger
}

// NewService creates a basket service
func NewService(db *sql.DB, lots LotSizer, ev *events.Manager, runLock *sync.Mutex, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		lots:    lots,
		events:  ev,
		runLock: runLock,
		log:     log.With().Str("service", "basket").Logger(),
	}
}

// Create builds a basket named name out of the standalone positions
// for symbols. Aggregates are lot-aware:
//
//	total_invested = sum(qty * avg_price) over members
//	basket_qty     = max(1, floor(mean of member_qty / lot_size))
//	per-lot price  = total_invested / basket_qty (derived on read)
//
// Each member is converted into a constituent leg and its standalone
// row is deleted, all in one transaction.
func (s *Service) Create(name string, symbols []string, strategyType string) (*ledger.OpenPosition, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("basket name cannot be empty")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("basket needs at least one member")
	}
	if strategyType == "" {
		strategyType = ledger.StrategyTrending
	}

	s.runLock.Lock()
	defer s.runLock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if taken, err := symbolTaken(tx, name); err != nil {
		return nil, err
	} else if taken {
		return nil, fmt.Errorf("symbol %s already exists in the ledger", name)
	}

	members, err := lockMembers(tx, symbols)
	if err != nil {
		return nil, err
	}

	totalInvested := 0.0
	totalLots := int64(0)
	entryDate := members[0].EntryDate
	for _, m := range members {
		totalInvested += float64(m.Qty) * m.AvgPrice
		totalLots += m.Qty / s.lots.LotSize(m.Symbol)
		if m.EntryDate.Before(entryDate) {
			entryDate = m.EntryDate
		}
	}

	basketQty := totalLots / int64(len(members))
	if basketQty < 1 {
		basketQty = 1
	}

	basketID, err := insertBasketRow(tx, name, basketQty, totalInvested, entryDate, strategyType)
	if err != nil {
		return nil, err
	}

	if err := convertMembers(tx, basketID, members); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit basket: %w", err)
	}

	s.log.Info().
		Str("basket", name).
		Int("members", len(members)).
		Int64("qty", basketQty).
		Float64("invested", totalInvested).
		Msg("Basket created")

	s.events.Emit(events.BasketCreated, "basket", map[string]interface{}{
		"basket":   name,
		"members":  len(members),
		"invested": totalInvested,
	})

	return &ledger.OpenPosition{
		ID:           basketID,
		Symbol:       name,
		Side:         ledger.SideBasket,
		Qty:          basketQty,
		AvgPrice:     totalInvested / float64(basketQty),
		Invested:     totalInvested,
		EntryDate:    entryDate,
		Exchange:     "MULTI",
		MaxExposure:  totalInvested,
		StrategyType: strategyType,
		IsBasket:     true,
	}, nil
}

// Add extends an existing basket with more standalone positions. The
// aggregate is recomputed over the union, preserving total invested
// capital and total lot count:
//
//	total_lots = existing_qty * existing_leg_count + sum(new member lots)
//	basket_qty = max(1, floor(total_lots / total_leg_count))
func (s *Service) Add(basketID int64, symbols []string) (*ledger.OpenPosition, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no members to add")
	}

	s.runLock.Lock()
	defer s.runLock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	basket, legCount, err := lockBasket(tx, basketID)
	if err != nil {
		return nil, err
	}

	members, err := lockMembers(tx, symbols)
	if err != nil {
		return nil, err
	}

	totalLots := basket.Qty * int64(legCount)
	totalInvested := basket.Invested
	for _, m := range members {
		totalLots += m.Qty / s.lots.LotSize(m.Symbol)
		totalInvested += float64(m.Qty) * m.AvgPrice
	}

	totalLegs := legCount + len(members)
	basketQty := totalLots / int64(totalLegs)
	if basketQty < 1 {
		basketQty = 1
	}

	maxExposure := basket.MaxExposure
	if totalInvested > maxExposure {
		maxExposure = totalInvested
	}

	_, err = tx.Exec(`
		UPDATE open_positions
		SET qty = ?, invested = ?, max_exposure = ?
		WHERE id = ? AND is_basket = 1`,
		basketQty, totalInvested, maxExposure, basketID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update basket: %w", err)
	}

	if err := convertMembers(tx, basketID, members); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit basket extension: %w", err)
	}

	s.log.Info().
		Str("basket", basket.Symbol).
		Int("added", len(members)).
		Int64("qty", basketQty).
		Float64("invested", totalInvested).
		Msg("Basket extended")

	s.events.Emit(events.BasketExtended, "basket", map[string]interface{}{
		"basket": basket.Symbol,
		"added":  len(members),
	})

	basket.Qty = basketQty
	basket.Invested = totalInvested
	basket.MaxExposure = maxExposure
	basket.AvgPrice = totalInvested / float64(basketQty)
	return &basket, nil
}

// --- transaction helpers ---

type member struct {
	ID        int64
	Symbol    string
	Side      string
	Qty       int64
	AvgPrice  float64
	EntryDate time.Time
	Exchange  sql.NullString
	Product   sql.NullString
}

func symbolTaken(tx *sql.Tx, symbol string) (bool, error) {
	var one int
	err := tx.QueryRow("SELECT 1 FROM open_positions WHERE symbol = ? LIMIT 1", symbol).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check symbol: %w", err)
	}
	return true, nil
}

// lockMembers reads every named standalone position inside the
// transaction. Missing, basket, or constituent symbols fail the whole
// call; a basket is built from complete positions or not at all.
func lockMembers(tx *sql.Tx, symbols []string) ([]member, error) {
	members := make([]member, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))

	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if _, dup := seen[symbol]; dup {
			return nil, fmt.Errorf("duplicate member symbol %s", symbol)
		}
		seen[symbol] = struct{}{}

		var m member
		var entryDate string
		var isBasket int
		err := tx.QueryRow(`
			SELECT id, symbol, side, qty, avg_price, entry_date, exchange, product, is_basket
			FROM open_positions WHERE symbol = ?`, symbol).
			Scan(&m.ID, &m.Symbol, &m.Side, &m.Qty, &m.AvgPrice, &entryDate,
				&m.Exchange, &m.Product, &isBasket)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no open position for %s", symbol)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load member %s: %w", symbol, err)
		}
		if isBasket != 0 {
			return nil, fmt.Errorf("%s is a basket, not a standalone position", symbol)
		}

		if t, err := time.Parse(time.RFC3339Nano, entryDate); err == nil {
			m.EntryDate = t
		}
		members = append(members, m)
	}

	return members, nil
}

func lockBasket(tx *sql.Tx, basketID int64) (ledger.OpenPosition, int, error) {
	var basket ledger.OpenPosition
	var side, entryDate string
	err := tx.QueryRow(`
		SELECT id, symbol, side, qty, invested, entry_date, max_exposure, strategy_type
		FROM open_positions WHERE id = ? AND is_basket = 1`, basketID).
		Scan(&basket.ID, &basket.Symbol, &side, &basket.Qty, &basket.Invested,
			&entryDate, &basket.MaxExposure, &basket.StrategyType)
	if err == sql.ErrNoRows {
		return basket, 0, fmt.Errorf("basket %d not found", basketID)
	}
	if err != nil {
		return basket, 0, fmt.Errorf("failed to load basket: %w", err)
	}

	basket.Side = ledger.Side(side)
	basket.IsBasket = true
	if t, err := time.Parse(time.RFC3339Nano, entryDate); err == nil {
		basket.EntryDate = t
	}

	var legCount int
	err = tx.QueryRow("SELECT COUNT(*) FROM basket_constituents WHERE basket_id = ?", basketID).Scan(&legCount)
	if err != nil {
		return basket, 0, fmt.Errorf("failed to count constituents: %w", err)
	}

	return basket, legCount, nil
}

func convertMembers(tx *sql.Tx, basketID int64, members []member) error {
	for _, m := range members {
		_, err := tx.Exec(`
			INSERT INTO basket_constituents
			(basket_id, symbol, side, qty, avg_price, entry_date, exchange, product)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			basketID, m.Symbol, m.Side, m.Qty, m.AvgPrice,
			m.EntryDate.Format(time.RFC3339Nano), m.Exchange, m.Product,
		)
		if err != nil {
			return fmt.Errorf("failed to insert constituent %s: %w", m.Symbol, err)
		}

		if _, err := tx.Exec("DELETE FROM open_positions WHERE id = ?", m.ID); err != nil {
			return fmt.Errorf("failed to remove standalone %s: %w", m.Symbol, err)
		}
	}
	return nil
}

func insertBasketRow(tx *sql.Tx, name string, qty int64, invested float64, entryDate time.Time, strategyType string) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO open_positions
		(symbol, side, qty, avg_price, invested, entry_date, exchange, product,
		 max_exposure, strategy_type, is_basket, realized_pnl, created_at)
		VALUES (?, ?, ?, 0, ?, ?, 'MULTI', 'MIS', ?, ?, 1, 0, ?)`,
		name, string(ledger.SideBasket), qty, invested,
		entryDate.Format(time.RFC3339Nano), invested, strategyType,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert basket row: %w", err)
	}
	return res.LastInsertId()
}
