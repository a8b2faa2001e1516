package ledger

import (
	"time"

	"github.com/rs/zerolog"
)

// ManualEntryWindow is how far a fill's timestamp may sit from an
// open position's entry date and still be treated as the broker echo
// of a manually recorded trade.
const ManualEntryWindow = 15 * time.Minute

// DedupGuard keeps a fill from mutating the ledger twice. Two layers:
//
//  1. Order ledger: any order id present in the orderbook (or seen
//     earlier in the same batch) is permanently inert.
//  2. Time window: a fill that matches an open position by symbol,
//     inferred side, and exact quantity, within ±15 minutes of that
//     position's entry timestamp, is the broker's copy of a position
//     the user already entered by hand. It produces no mutations but
//     is still recorded as processed so replays stay quiet.
type DedupGuard struct {
	log zerolog.Logger
}

// NewDedupGuard creates a dedup guard
func NewDedupGuard(log zerolog.Logger) *DedupGuard {
	return &DedupGuard{
		log: log.With().Str("component", "dedup").Logger(),
	}
}

// FilterResult separates fills the engine should see from fills that
// must only be marked processed.
type FilterResult struct {
	Fresh   []OrderFill // hand these to the engine
	Skipped []OrderFill // record in the orderbook, nothing else
}

// Filter applies both dedup layers against the snapshot. Order ids
// already in the snapshot's processed set are dropped entirely (they
// are in the orderbook already); window matches are split out so the
// caller can persist them without reconciling them.
func (g *DedupGuard) Filter(snap *Snapshot, fills []OrderFill) FilterResult {
	var result FilterResult
	seen := make(map[string]struct{}, len(fills))

	for _, fill := range fills {
		if snap.IsProcessed(fill.OrderID) {
			g.log.Debug().
				Str("order_id", fill.OrderID).
				Msg("Order already processed, dropping")
			continue
		}
		if _, dup := seen[fill.OrderID]; dup {
			g.log.Warn().
				Str("order_id", fill.OrderID).
				Msg("Duplicate order id within batch, dropping")
			continue
		}
		seen[fill.OrderID] = struct{}{}

		if g.matchesManualEntry(snap, fill) {
			g.log.Info().
				Str("order_id", fill.OrderID).
				Str("symbol", fill.Symbol).
				Int64("qty", fill.Qty).
				Msg("Fill matches manually entered position, skipping reconciliation")
			result.Skipped = append(result.Skipped, fill)
			continue
		}

		result.Fresh = append(result.Fresh, fill)
	}

	return result
}

// matchesManualEntry checks the ±15 minute heuristic against both
// standalone positions and basket legs.
func (g *DedupGuard) matchesManualEntry(snap *Snapshot, fill OrderFill) bool {
	side := fill.Side.OpensSide()

	if pos, ok := snap.Open[fill.Symbol]; ok {
		if pos.Side == side && pos.Qty == fill.Qty && withinWindow(pos.EntryDate, fill.Timestamp) {
			return true
		}
	}

	if ref, ok := snap.Constituents[fill.Symbol]; ok {
		c := ref.Constituent
		if c.Side == side && c.Qty == fill.Qty && withinWindow(c.EntryDate, fill.Timestamp) {
			return true
		}
	}

	return false
}

func withinWindow(entry, ts time.Time) bool {
	d := ts.Sub(entry)
	if d < 0 {
		d = -d
	}
	return d <= ManualEntryWindow
}
