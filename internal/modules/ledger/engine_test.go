package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func TestEngine_Reconcile_OpensNewPosition(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "RELIANCE", Side: TxnBuy, Qty: 10, Price: 100, Timestamp: baseTime},
	})

	require.Len(t, ops, 1)
	upsert, ok := ops[0].(UpsertOpenPosition)
	require.True(t, ok)
	assert.Equal(t, "RELIANCE", upsert.Position.Symbol)
	assert.Equal(t, SideLong, upsert.Position.Side)
	assert.Equal(t, int64(10), upsert.Position.Qty)
	assert.Equal(t, 100.0, upsert.Position.AvgPrice)
	assert.Equal(t, 10.0, upsert.Position.MaxExposure)
}

func TestEngine_Reconcile_SellOpensShort(t *testing.T) {
	engine := newTestEngine()

	ops := engine.Reconcile(NewSnapshot(), []OrderFill{
		{OrderID: "o1", Symbol: "TCS", Side: TxnSell, Qty: 5, Price: 200, Timestamp: baseTime},
	})

	require.Len(t, ops, 1)
	upsert := ops[0].(UpsertOpenPosition)
	assert.Equal(t, SideShort, upsert.Position.Side)
}

func TestEngine_Reconcile_AccumulationWeightsAverage(t *testing.T) {
	engine := newTestEngine()

	ops := engine.Reconcile(NewSnapshot(), []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnBuy, Qty: 10, Price: 100, Timestamp: baseTime},
		{OrderID: "o2", Symbol: "INFY", Side: TxnBuy, Qty: 10, Price: 110, Timestamp: baseTime.Add(time.Minute)},
	})

	require.Len(t, ops, 2)
	final := ops[1].(UpsertOpenPosition)
	assert.Equal(t, int64(20), final.Position.Qty)
	assert.InDelta(t, 105.0, final.Position.AvgPrice, 1e-9)
	assert.Equal(t, 20.0, final.Position.MaxExposure)
}

func TestEngine_Reconcile_PartialExitKeepsCostBasis(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Open["INFY"] = OpenPosition{
		Symbol: "INFY", Side: SideLong, Qty: 10, AvgPrice: 100,
		EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
	}

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnSell, Qty: 4, Price: 110, Timestamp: baseTime.Add(time.Hour)},
	})

	require.Len(t, ops, 2)

	upsert := ops[0].(UpsertOpenPosition)
	assert.Equal(t, int64(6), upsert.Position.Qty)
	assert.Equal(t, 100.0, upsert.Position.AvgPrice)

	add := ops[1].(AddClosedRecord)
	assert.Equal(t, ClosurePartial, add.Record.ClosureType)
	assert.Equal(t, int64(4), add.Record.Qty)
	assert.InDelta(t, 40.0, add.Record.Pnl, 1e-9)
	assert.NotEmpty(t, add.ProvisionalID)
}

func TestEngine_Reconcile_PartialsInOneBatchMerge(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Open["INFY"] = OpenPosition{
		Symbol: "INFY", Side: SideLong, Qty: 10, AvgPrice: 100,
		EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
	}

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnSell, Qty: 5, Price: 110, Timestamp: baseTime.Add(time.Hour)},
		{OrderID: "o2", Symbol: "INFY", Side: TxnSell, Qty: 5, Price: 130, Timestamp: baseTime.Add(2 * time.Hour)},
	})

	// upsert(qty 5), add partial, update merged to FULL, delete
	require.Len(t, ops, 4)

	add := ops[1].(AddClosedRecord)
	require.NotEmpty(t, add.ProvisionalID)

	update := ops[2].(UpdateClosedRecord)
	assert.Equal(t, add.ProvisionalID, update.ProvisionalID)
	assert.Zero(t, update.ID)
	assert.Equal(t, int64(10), update.Qty)
	assert.InDelta(t, 120.0, update.ExitPrice, 1e-9)
	assert.InDelta(t, 100.0, update.EntryPrice, 1e-9)
	assert.InDelta(t, 200.0, update.Pnl, 1e-9)
	assert.Equal(t, ClosureFull, update.ClosureType)

	_, isDelete := ops[3].(DeleteOpenPosition)
	assert.True(t, isDelete)
}

func TestEngine_Reconcile_ExitMergesIntoPersistedPartial(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Open["INFY"] = OpenPosition{
		Symbol: "INFY", Side: SideLong, Qty: 5, AvgPrice: 100,
		EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
	}
	snap.PendingPartials["INFY"] = PendingPartial{Record: ClosedRecord{
		ID: 7, Symbol: "INFY", Side: SideLong, Qty: 5,
		EntryPrice: 100, ExitPrice: 110, Pnl: 50,
		EntryDate: baseTime, ExitDate: baseTime.Add(time.Hour),
		ClosureType: ClosurePartial,
	}}

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnSell, Qty: 5, Price: 130, Timestamp: baseTime.Add(2 * time.Hour)},
	})

	require.Len(t, ops, 2)
	update := ops[0].(UpdateClosedRecord)
	assert.Equal(t, int64(7), update.ID)
	assert.Empty(t, update.ProvisionalID)
	assert.Equal(t, int64(10), update.Qty)
	assert.InDelta(t, 120.0, update.ExitPrice, 1e-9)
	assert.InDelta(t, 250.0, update.Pnl, 1e-9)
	assert.Equal(t, ClosureFull, update.ClosureType)
}

func TestEngine_Reconcile_FlipClosesAndReopens(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Open["INFY"] = OpenPosition{
		Symbol: "INFY", Side: SideLong, Qty: 10, AvgPrice: 100,
		EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
	}

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnSell, Qty: 15, Price: 110, Timestamp: baseTime.Add(time.Hour)},
	})

	require.Len(t, ops, 3)

	add := ops[0].(AddClosedRecord)
	assert.Equal(t, ClosureFull, add.Record.ClosureType)
	assert.Equal(t, int64(10), add.Record.Qty)
	assert.InDelta(t, 100.0, add.Record.Pnl, 1e-9)

	_, isDelete := ops[1].(DeleteOpenPosition)
	assert.True(t, isDelete)

	reopened := ops[2].(UpsertOpenPosition)
	assert.Equal(t, SideShort, reopened.Position.Side)
	assert.Equal(t, int64(5), reopened.Position.Qty)
	assert.Equal(t, 110.0, reopened.Position.AvgPrice)
}

func TestEngine_Reconcile_ShortSidePnl(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Open["INFY"] = OpenPosition{
		Symbol: "INFY", Side: SideShort, Qty: 10, AvgPrice: 100,
		EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
	}

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnBuy, Qty: 10, Price: 90, Timestamp: baseTime.Add(time.Hour)},
	})

	require.Len(t, ops, 2)
	add := ops[0].(AddClosedRecord)
	// Shorts profit when price falls
	assert.InDelta(t, 100.0, add.Record.Pnl, 1e-9)
}

func TestEngine_Reconcile_FullLifecycleConservesPnl(t *testing.T) {
	engine := newTestEngine()

	ops := engine.Reconcile(NewSnapshot(), []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnBuy, Qty: 10, Price: 100, Timestamp: baseTime},
		{OrderID: "o2", Symbol: "INFY", Side: TxnBuy, Qty: 10, Price: 110, Timestamp: baseTime.Add(time.Minute)},
		{OrderID: "o3", Symbol: "INFY", Side: TxnSell, Qty: 10, Price: 120, Timestamp: baseTime.Add(2 * time.Minute)},
		{OrderID: "o4", Symbol: "INFY", Side: TxnSell, Qty: 10, Price: 130, Timestamp: baseTime.Add(3 * time.Minute)},
	})

	var finalRecord *UpdateClosedRecord
	var deleted bool
	for _, op := range ops {
		switch op := op.(type) {
		case UpdateClosedRecord:
			finalRecord = &op
		case DeleteOpenPosition:
			deleted = true
		}
	}

	require.NotNil(t, finalRecord)
	assert.True(t, deleted)
	assert.Equal(t, int64(20), finalRecord.Qty)
	assert.Equal(t, ClosureFull, finalRecord.ClosureType)
	// entry basis 105, exits averaged to 125: pnl = 20 * 20
	assert.InDelta(t, 105.0, finalRecord.EntryPrice, 1e-9)
	assert.InDelta(t, 125.0, finalRecord.ExitPrice, 1e-9)
	assert.InDelta(t, 400.0, finalRecord.Pnl, 1e-9)
}

func TestEngine_Reconcile_MalformedFillIsSkipped(t *testing.T) {
	engine := newTestEngine()

	ops := engine.Reconcile(NewSnapshot(), []OrderFill{
		{OrderID: "bad", Symbol: "", Side: TxnBuy, Qty: 10, Price: 100, Timestamp: baseTime},
		{OrderID: "bad2", Symbol: "INFY", Side: TxnBuy, Qty: 0, Price: 100, Timestamp: baseTime},
		{OrderID: "ok", Symbol: "INFY", Side: TxnBuy, Qty: 10, Price: 100, Timestamp: baseTime},
	})

	require.Len(t, ops, 1)
	upsert := ops[0].(UpsertOpenPosition)
	assert.Equal(t, int64(10), upsert.Position.Qty)
}

func TestEngine_Reconcile_DoesNotMutateSnapshot(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Open["INFY"] = OpenPosition{
		Symbol: "INFY", Side: SideLong, Qty: 10, AvgPrice: 100,
		EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
	}

	engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "INFY", Side: TxnSell, Qty: 10, Price: 120, Timestamp: baseTime.Add(time.Hour)},
	})

	pos, ok := snap.Open["INFY"]
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Qty)
	assert.Empty(t, snap.PendingPartials)
}

// --- constituent paths ---

func basketSnapshot() *Snapshot {
	snap := NewSnapshot()
	snap.Baskets[1] = OpenPosition{
		ID: 1, Symbol: "STRADDLE", Side: SideBasket, Qty: 2,
		Invested: 20000, EntryDate: baseTime, Exchange: "MULTI",
		MaxExposure: 20000, StrategyType: StrategySideways, IsBasket: true,
	}
	snap.Constituents["NIFTYCE"] = ConstituentRef{BasketID: 1, Constituent: BasketConstituent{
		ID: 11, BasketID: 1, Symbol: "NIFTYCE", Side: SideLong,
		Qty: 75, AvgPrice: 100, EntryDate: baseTime,
	}}
	snap.Constituents["NIFTYPE"] = ConstituentRef{BasketID: 1, Constituent: BasketConstituent{
		ID: 12, BasketID: 1, Symbol: "NIFTYPE", Side: SideLong,
		Qty: 75, AvgPrice: 166, EntryDate: baseTime,
	}}
	return snap
}

func TestEngine_Reconcile_ConstituentAccumulation(t *testing.T) {
	engine := newTestEngine()

	ops := engine.Reconcile(basketSnapshot(), []OrderFill{
		{OrderID: "o1", Symbol: "NIFTYCE", Side: TxnBuy, Qty: 75, Price: 120, Timestamp: baseTime.Add(time.Hour)},
	})

	require.Len(t, ops, 2)

	uc := ops[0].(UpdateConstituent)
	assert.Equal(t, int64(11), uc.ID)
	assert.Equal(t, int64(150), uc.Qty)
	assert.InDelta(t, 110.0, uc.AvgPrice, 1e-9)

	adj := ops[1].(BasketAdjustAdd)
	assert.Equal(t, int64(1), adj.BasketID)
	assert.InDelta(t, 9000.0, adj.Amount, 1e-9)
}

func TestEngine_Reconcile_ConstituentPartialExit(t *testing.T) {
	engine := newTestEngine()

	ops := engine.Reconcile(basketSnapshot(), []OrderFill{
		{OrderID: "o1", Symbol: "NIFTYCE", Side: TxnSell, Qty: 25, Price: 140, Timestamp: baseTime.Add(time.Hour)},
	})

	require.Len(t, ops, 3)

	uc := ops[0].(UpdateConstituent)
	assert.Equal(t, int64(50), uc.Qty)

	add := ops[1].(AddClosedRecord)
	assert.Equal(t, ClosurePartialBasket, add.Record.ClosureType)
	assert.Equal(t, int64(25), add.Record.Qty)
	assert.InDelta(t, 1000.0, add.Record.Pnl, 1e-9)
	require.NotNil(t, add.Record.BasketID)
	assert.Equal(t, int64(1), *add.Record.BasketID)

	adj := ops[2].(BasketAdjustReduce)
	assert.InDelta(t, 2500.0, adj.CostRemoved, 1e-9)
	assert.InDelta(t, 1000.0, adj.PnlRealized, 1e-9)
}

func TestEngine_Reconcile_LastConstituentClosesBasket(t *testing.T) {
	engine := newTestEngine()
	snap := basketSnapshot()
	delete(snap.Constituents, "NIFTYPE")

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "NIFTYCE", Side: TxnSell, Qty: 75, Price: 140, Timestamp: baseTime.Add(time.Hour)},
	})

	var fullBasket *AddClosedRecord
	var deletedSymbol string
	for _, op := range ops {
		switch op := op.(type) {
		case AddClosedRecord:
			if op.Record.ClosureType == ClosureFullBasket {
				rec := op
				fullBasket = &rec
			}
		case DeleteOpenPosition:
			deletedSymbol = op.Symbol
		}
	}

	require.NotNil(t, fullBasket)
	assert.Equal(t, "STRADDLE", fullBasket.Record.Symbol)
	assert.Equal(t, SideBasket, fullBasket.Record.Side)
	assert.Equal(t, "STRADDLE", deletedSymbol)
}

func TestEngine_Reconcile_ConstituentOvershootOpensStandalone(t *testing.T) {
	engine := newTestEngine()
	snap := basketSnapshot()

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "NIFTYCE", Side: TxnSell, Qty: 100, Price: 140, Timestamp: baseTime.Add(time.Hour)},
	})

	var reopened *UpsertOpenPosition
	for _, op := range ops {
		if u, ok := op.(UpsertOpenPosition); ok {
			reopened = &u
		}
	}

	// 75 closed the leg, the surplus 25 opens fresh on the sell side
	require.NotNil(t, reopened)
	assert.Equal(t, "NIFTYCE", reopened.Position.Symbol)
	assert.Equal(t, SideShort, reopened.Position.Side)
	assert.Equal(t, int64(25), reopened.Position.Qty)
	assert.Equal(t, 140.0, reopened.Position.AvgPrice)
	assert.False(t, reopened.Position.IsBasket)
}

func TestEngine_Reconcile_OrphanedConstituentFallsBackToStandalone(t *testing.T) {
	engine := newTestEngine()
	snap := NewSnapshot()
	snap.Constituents["NIFTYCE"] = ConstituentRef{BasketID: 99, Constituent: BasketConstituent{
		ID: 11, BasketID: 99, Symbol: "NIFTYCE", Side: SideLong, Qty: 75, AvgPrice: 100,
	}}

	ops := engine.Reconcile(snap, []OrderFill{
		{OrderID: "o1", Symbol: "NIFTYCE", Side: TxnBuy, Qty: 75, Price: 100, Timestamp: baseTime},
	})

	require.Len(t, ops, 1)
	_, isUpsert := ops[0].(UpsertOpenPosition)
	assert.True(t, isUpsert)
}
