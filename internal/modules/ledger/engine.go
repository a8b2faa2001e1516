package ledger

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine turns an ordered batch of fills into ledger operations.
//
// The engine is deterministic and side-effect free: it reads a
// Snapshot, works on a private copy of it, and returns the Operation
// list for the applier to commit. Mutating the working copy as fills
// are consumed is what lets several fills against the same symbol in
// one batch compose correctly before anything is persisted.
//
// Per symbol the standalone lifecycle is a small state machine:
// NONE -> OPEN on the first fill, OPEN -> OPEN on accumulation or
// partial exit, OPEN -> NONE on an exact exit, and OPEN -> OPEN on
// the opposite side when a single fill overshoots the open quantity
// (a flip). Constituent fills mirror the same transitions scoped to
// their parent basket aggregate.
//
// Anomalous fills never abort the batch: malformed ones are dropped
// with a warning and oversized reductions take the flip path. A sync
// must always run to completion over the remaining fills.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "engine").Logger(),
	}
}

// Reconcile maps (snapshot, fill batch) to an ordered operation list.
// Fills must arrive sorted ascending by timestamp; the caller owns
// that ordering. The snapshot is not modified.
func (e *Engine) Reconcile(snap *Snapshot, fills []OrderFill) []Operation {
	ws := snap.clone()
	var ops []Operation

	for _, fill := range fills {
		if err := fill.Validate(); err != nil {
			e.log.Warn().
				Err(err).
				Str("order_id", fill.OrderID).
				Str("symbol", fill.Symbol).
				Msg("Dropping malformed fill")
			continue
		}

		if ref, ok := ws.Constituents[fill.Symbol]; ok {
			ops = e.applyConstituentFill(ws, ops, ref, fill)
		} else if pos, ok := ws.Open[fill.Symbol]; ok {
			ops = e.applyStandaloneFill(ws, ops, pos, fill)
		} else {
			ops = e.openNewPosition(ws, ops, fill)
		}
	}

	return ops
}

// openNewPosition handles the NONE -> OPEN transition
func (e *Engine) openNewPosition(ws *Snapshot, ops []Operation, fill OrderFill) []Operation {
	pos := OpenPosition{
		Symbol:       fill.Symbol,
		Side:         fill.Side.OpensSide(),
		Qty:          fill.Qty,
		AvgPrice:     fill.Price,
		EntryDate:    fill.Timestamp,
		Exchange:     fill.Exchange,
		Product:      fill.Product,
		MaxExposure:  float64(fill.Qty),
		StrategyType: GuessStrategyType(fill.Symbol),
	}

	ws.Open[fill.Symbol] = pos
	return append(ops, UpsertOpenPosition{Position: pos})
}

// applyStandaloneFill handles accumulation, partial exit, full exit,
// and flip against a standalone open position.
func (e *Engine) applyStandaloneFill(ws *Snapshot, ops []Operation, pos OpenPosition, fill OrderFill) []Operation {
	accumulating := (pos.Side == SideLong && fill.Side == TxnBuy) ||
		(pos.Side == SideShort && fill.Side == TxnSell)

	if accumulating {
		totalCost := float64(pos.Qty)*pos.AvgPrice + float64(fill.Qty)*fill.Price
		pos.Qty += fill.Qty
		pos.AvgPrice = totalCost / float64(pos.Qty)
		if float64(pos.Qty) > pos.MaxExposure {
			pos.MaxExposure = float64(pos.Qty)
		}

		ws.Open[fill.Symbol] = pos
		return append(ops, UpsertOpenPosition{Position: pos})
	}

	switch {
	case fill.Qty < pos.Qty:
		// Partial exit: quantity shrinks, cost basis is untouched
		pos.Qty -= fill.Qty
		ws.Open[fill.Symbol] = pos
		ops = append(ops, UpsertOpenPosition{Position: pos})
		return e.realizeExit(ws, ops, pos, fill, fill.Qty, false)

	case fill.Qty == pos.Qty:
		ops = e.realizeExit(ws, ops, pos, fill, pos.Qty, true)
		delete(ws.Open, fill.Symbol)
		return append(ops, DeleteOpenPosition{Symbol: fill.Symbol})

	default:
		// Flip: close the remaining quantity in full, then reopen the
		// surplus on the opposite side at the fill price.
		exitQty := pos.Qty
		ops = e.realizeExit(ws, ops, pos, fill, exitQty, true)
		delete(ws.Open, fill.Symbol)
		ops = append(ops, DeleteOpenPosition{Symbol: fill.Symbol})

		flipped := OpenPosition{
			Symbol:       fill.Symbol,
			Side:         pos.Side.Opposite(),
			Qty:          fill.Qty - exitQty,
			AvgPrice:     fill.Price,
			EntryDate:    fill.Timestamp,
			Exchange:     fill.Exchange,
			Product:      fill.Product,
			MaxExposure:  float64(fill.Qty - exitQty),
			StrategyType: GuessStrategyType(fill.Symbol),
		}

		e.log.Info().
			Str("symbol", fill.Symbol).
			Str("from", string(pos.Side)).
			Str("to", string(flipped.Side)).
			Int64("qty", flipped.Qty).
			Msg("Position flipped")

		ws.Open[fill.Symbol] = flipped
		return append(ops, UpsertOpenPosition{Position: flipped})
	}
}

// realizeExit emits the closed-record mutation for an exit of
// exitQty units at the fill price. When a pending partial exists for
// the symbol the exit merges into it (quantity-weighted entry and
// exit prices, summed pnl); otherwise a new record is created. final
// promotes the (possibly merged) record to FULL and seals it.
func (e *Engine) realizeExit(ws *Snapshot, ops []Operation, pos OpenPosition, fill OrderFill, exitQty int64, final bool) []Operation {
	pnl := pos.Side.PnlSign() * (fill.Price - pos.AvgPrice) * float64(exitQty)

	closure := ClosurePartial
	if final {
		closure = ClosureFull
	}

	if pending, ok := ws.PendingPartial(fill.Symbol); ok {
		prev := pending.Record
		mergedQty := prev.Qty + exitQty
		mergedPnl := prev.Pnl + pnl
		mergedExit := (float64(prev.Qty)*prev.ExitPrice + float64(exitQty)*fill.Price) / float64(mergedQty)
		mergedEntry := (float64(prev.Qty)*prev.EntryPrice + float64(exitQty)*pos.AvgPrice) / float64(mergedQty)

		ops = append(ops, UpdateClosedRecord{
			ID:            prev.ID,
			ProvisionalID: pending.ProvisionalID,
			Qty:           mergedQty,
			Pnl:           mergedPnl,
			EntryPrice:    mergedEntry,
			ExitPrice:     mergedExit,
			ClosureType:   closure,
			ExitDate:      fill.Timestamp,
		})

		if final {
			// Promoted to FULL: the record is immutable from here on
			delete(ws.PendingPartials, fill.Symbol)
		} else {
			prev.Qty = mergedQty
			prev.Pnl = mergedPnl
			prev.ExitPrice = mergedExit
			prev.EntryPrice = mergedEntry
			prev.ExitDate = fill.Timestamp
			pending.Record = prev
			ws.PendingPartials[fill.Symbol] = pending
		}

		return ops
	}

	record := ClosedRecord{
		Symbol:       fill.Symbol,
		Side:         pos.Side,
		Qty:          exitQty,
		EntryPrice:   pos.AvgPrice,
		ExitPrice:    fill.Price,
		EntryDate:    pos.EntryDate,
		ExitDate:     fill.Timestamp,
		Pnl:          pnl,
		ClosureType:  closure,
		Exchange:     fill.Exchange,
		Product:      fill.Product,
		StrategyType: pos.StrategyType,
	}

	add := AddClosedRecord{Record: record}
	if !final {
		// No database id exists yet; allocate a provisional one so a
		// later fill in this same batch can still merge.
		add.ProvisionalID = uuid.NewString()
		ws.PendingPartials[fill.Symbol] = PendingPartial{
			Record:        record,
			ProvisionalID: add.ProvisionalID,
		}
	}

	return append(ops, add)
}

// applyConstituentFill mirrors the standalone transitions against a
// basket leg and its parent aggregate.
func (e *Engine) applyConstituentFill(ws *Snapshot, ops []Operation, ref ConstituentRef, fill OrderFill) []Operation {
	c := ref.Constituent
	basket, ok := ws.Baskets[ref.BasketID]
	if !ok {
		// Orphaned leg; reconcile the fill as if the symbol were
		// standalone rather than lose it.
		e.log.Warn().
			Str("symbol", fill.Symbol).
			Int64("basket_id", ref.BasketID).
			Msg("Constituent references missing basket, treating fill as standalone")
		delete(ws.Constituents, fill.Symbol)
		return e.openNewPosition(ws, ops, fill)
	}

	accumulating := (c.Side == SideLong && fill.Side == TxnBuy) ||
		(c.Side == SideShort && fill.Side == TxnSell)

	if accumulating {
		totalCost := float64(c.Qty)*c.AvgPrice + float64(fill.Qty)*fill.Price
		c.Qty += fill.Qty
		c.AvgPrice = totalCost / float64(c.Qty)

		added := float64(fill.Qty) * fill.Price
		basket.Invested += added
		if basket.Invested > basket.MaxExposure {
			basket.MaxExposure = basket.Invested
		}

		ref.Constituent = c
		ws.Constituents[fill.Symbol] = ref
		ws.Baskets[ref.BasketID] = basket

		ops = append(ops, UpdateConstituent{ID: c.ID, Qty: c.Qty, AvgPrice: c.AvgPrice})
		return append(ops, BasketAdjustAdd{BasketID: ref.BasketID, Amount: added})
	}

	// Reduction: realize pnl against the leg's cost basis and strip
	// the exited cost from the parent proportionally.
	exitQty := fill.Qty
	if exitQty > c.Qty {
		exitQty = c.Qty
	}
	remaining := c.Qty - exitQty
	pnl := c.Side.PnlSign() * (fill.Price - c.AvgPrice) * float64(exitQty)
	costRemoved := float64(exitQty) * c.AvgPrice

	basketID := ref.BasketID
	ops = append(ops, UpdateConstituent{ID: c.ID, Qty: remaining, AvgPrice: c.AvgPrice})
	ops = append(ops, AddClosedRecord{Record: ClosedRecord{
		Symbol:       c.Symbol,
		Side:         c.Side,
		Qty:          exitQty,
		EntryPrice:   c.AvgPrice,
		ExitPrice:    fill.Price,
		EntryDate:    c.EntryDate,
		ExitDate:     fill.Timestamp,
		Pnl:          pnl,
		ClosureType:  ClosurePartialBasket,
		Exchange:     fill.Exchange,
		Product:      fill.Product,
		StrategyType: basket.StrategyType,
		BasketID:     &basketID,
	}})
	ops = append(ops, BasketAdjustReduce{BasketID: basketID, CostRemoved: costRemoved, PnlRealized: pnl})

	basket.Invested -= costRemoved
	basket.RealizedPnl += pnl
	ws.Baskets[basketID] = basket

	if remaining > 0 {
		ref.Constituent.Qty = remaining
		ws.Constituents[fill.Symbol] = ref
	} else {
		delete(ws.Constituents, fill.Symbol)
		if !basketHasLegs(ws, basketID) {
			ops = e.closeBasket(ws, ops, basket, fill)
		}
	}

	// Overshoot: whatever exceeds the leg opens a fresh standalone
	// position; basket membership does not carry across.
	if surplus := fill.Qty - exitQty; surplus > 0 {
		over := fill
		over.Qty = surplus
		ops = e.openNewPosition(ws, ops, over)
	}

	return ops
}

// closeBasket converts an emptied basket into a FULL_BASKET record
func (e *Engine) closeBasket(ws *Snapshot, ops []Operation, basket OpenPosition, fill OrderFill) []Operation {
	basketID := basket.ID

	e.log.Info().
		Str("basket", basket.Symbol).
		Float64("realized_pnl", basket.RealizedPnl).
		Msg("Last constituent closed, closing basket")

	ops = append(ops, AddClosedRecord{Record: ClosedRecord{
		Symbol:       basket.Symbol,
		Side:         SideBasket,
		Qty:          basket.Qty,
		EntryDate:    basket.EntryDate,
		ExitDate:     fill.Timestamp,
		Pnl:          basket.RealizedPnl,
		ClosureType:  ClosureFullBasket,
		Exchange:     basket.Exchange,
		Product:      basket.Product,
		StrategyType: basket.StrategyType,
		BasketID:     &basketID,
	}})

	delete(ws.Baskets, basketID)
	return append(ops, DeleteOpenPosition{Symbol: basket.Symbol})
}

func basketHasLegs(ws *Snapshot, basketID int64) bool {
	for _, ref := range ws.Constituents {
		if ref.BasketID == basketID {
			return true
		}
	}
	return false
}
