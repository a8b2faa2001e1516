// Package sync orchestrates one reconciliation run: fetch orders from
// the broker, filter them through the dedup guard, hand the survivors
// to the engine, and commit the derived operations.
package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dhanvin/tradebook/internal/clients/broker"
	"github.com/dhanvin/tradebook/internal/events"
	"github.com/dhanvin/tradebook/internal/modules/ledger"
)

// OrderSource supplies the broker order book
type OrderSource interface {
	FetchOrders(ctx context.Context) ([]broker.Order, error)
}

// Result summarizes one sync run
type Result struct {
	FetchedOrders int `json:"fetched_orders"`
	NewFills      int `json:"new_fills"`
	SkippedFills  int `json:"skipped_fills"`
	Operations    int `json:"operations"`
}

// Service runs the fill pipeline. All runs serialize on runLock (the
// basket manager takes the same lock), because the engine composes
// fills against a working snapshot that concurrent mutations would
// invalidate. A failed run leaves the ledger untouched: operations
// commit in one transaction and order ids are only recorded after it.
type Service struct {
	source  OrderSource
	repo    *ledger.Repository
	engine  *ledger.Engine
	guard   *ledger.DedupGuard
	events  *events.Manager
	runLock *sync.Mutex
	log     zerolog.Logger
}

// NewService creates a sync service
func NewService(source OrderSource, repo *ledger.Repository, engine *ledger.Engine, guard *ledger.DedupGuard, ev *events.Manager, runLock *sync.Mutex, log zerolog.Logger) *Service {
	return &Service{
		source:  source,
		repo:    repo,
		engine:  engine,
		guard:   guard,
		events:  ev,
		runLock: runLock,
		log:     log.With().Str("service", "sync").Logger(),
	}
}

// Run fetches the broker order book and reconciles it into the ledger
func (s *Service) Run(ctx context.Context) (*Result, error) {
	orders, err := s.source.FetchOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	fills := fillsFromOrders(orders)
	result, err := s.Reconcile(fills)
	if err != nil {
		return nil, err
	}

	result.FetchedOrders = len(orders)
	return result, nil
}

// Reconcile runs the pipeline over an already-assembled fill batch
// (broker orders or manual entry). Fills are sorted by timestamp here
// so the engine always sees its required ordering; ties keep arrival
// order.
func (s *Service) Reconcile(fills []ledger.OrderFill) (*Result, error) {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	s.events.Emit(events.SyncStarted, "sync", map[string]interface{}{"fills": len(fills)})

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Timestamp.Before(fills[j].Timestamp)
	})

	snap, err := s.repo.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	filtered := s.guard.Filter(snap, fills)

	ops := s.engine.Reconcile(snap, filtered.Fresh)

	// Window-matched fills produced no operations but still become
	// inert; committing their order ids together with the operations
	// keeps a failed batch fully replayable and a committed one
	// immune to re-application.
	processed := append(append([]ledger.OrderFill{}, filtered.Fresh...), filtered.Skipped...)
	applied, err := s.repo.CommitRun(ops, processed)
	if err != nil {
		// The batch is discarded wholesale; nothing was committed and
		// the untouched orderbook makes a retry reprocess everything.
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	s.emitLifecycleEvents(ops)

	result := &Result{
		NewFills:     len(filtered.Fresh),
		SkippedFills: len(filtered.Skipped),
		Operations:   applied,
	}

	s.log.Info().
		Int("new_fills", result.NewFills).
		Int("skipped", result.SkippedFills).
		Int("operations", result.Operations).
		Msg("Sync completed")

	s.events.Emit(events.SyncCompleted, "sync", map[string]interface{}{
		"new_fills":  result.NewFills,
		"skipped":    result.SkippedFills,
		"operations": result.Operations,
	})

	return result, nil
}

func (s *Service) emitLifecycleEvents(ops []ledger.Operation) {
	for _, op := range ops {
		switch op := op.(type) {
		case ledger.AddClosedRecord:
			event := events.PositionClosed
			if op.Record.ClosureType == ledger.ClosureFullBasket {
				event = events.BasketClosed
			}
			s.events.Emit(event, "sync", map[string]interface{}{
				"symbol": op.Record.Symbol,
				"pnl":    op.Record.Pnl,
				"type":   string(op.Record.ClosureType),
			})
		}
	}
}

// fillsFromOrders keeps only terminally filled orders and converts
// them to engine input.
func fillsFromOrders(orders []broker.Order) []ledger.OrderFill {
	fills := make([]ledger.OrderFill, 0, len(orders))
	for _, o := range orders {
		if o.Status != broker.StatusComplete {
			continue
		}
		side, err := ledger.TxnTypeFromString(o.TransactionTyp)
		if err != nil {
			continue
		}
		fills = append(fills, ledger.OrderFill{
			OrderID:   o.OrderID,
			Symbol:    o.TradingSymbol,
			Side:      side,
			Qty:       o.Quantity,
			Price:     o.AveragePrice,
			Timestamp: o.OrderTimestamp,
			Exchange:  o.Exchange,
			Product:   o.Product,
		})
	}
	return fills
}
