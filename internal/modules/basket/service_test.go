package basket

import (
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanvin/tradebook/internal/database"
	"github.com/dhanvin/tradebook/internal/events"
	"github.com/dhanvin/tradebook/internal/modules/ledger"
)

type fixedLots struct {
	sizes map[string]int64
}

func (f fixedLots) LotSize(symbol string) int64 {
	if lot, ok := f.sizes[symbol]; ok {
		return lot
	}
	return 1
}

func newTestService(t *testing.T, lots LotSizer) (*Service, *ledger.Repository) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	repo := ledger.NewRepository(db.Conn(), log)
	svc := NewService(db.Conn(), lots, events.NewManager(log), &gosync.Mutex{}, log)
	return svc, repo
}

func seedPosition(t *testing.T, repo *ledger.Repository, symbol string, qty int64, avgPrice float64) {
	t.Helper()

	_, err := repo.ApplyOperations([]ledger.Operation{
		ledger.UpsertOpenPosition{Position: ledger.OpenPosition{
			Symbol:       symbol,
			Side:         ledger.SideLong,
			Qty:          qty,
			AvgPrice:     avgPrice,
			EntryDate:    time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC),
			Exchange:     "NSE",
			Product:      "MIS",
			MaxExposure:  float64(qty),
			StrategyType: ledger.StrategySideways,
		}},
	})
	require.NoError(t, err)
}

func TestService_Create_LotAwareAggregates(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{})
	seedPosition(t, repo, "LEGA", 100, 100)
	seedPosition(t, repo, "LEGB", 50, 200)

	basket, err := svc.Create("straddle", []string{"LEGA", "LEGB"}, ledger.StrategySideways)
	require.NoError(t, err)

	// (100 + 50) lots over 2 legs, invested 100*100 + 50*200
	assert.Equal(t, "STRADDLE", basket.Symbol)
	assert.Equal(t, int64(75), basket.Qty)
	assert.InDelta(t, 20000.0, basket.Invested, 1e-9)
	assert.InDelta(t, 266.6667, basket.AvgPrice, 1e-3)
	assert.True(t, basket.IsBasket)
	assert.Equal(t, ledger.SideBasket, basket.Side)

	// Standalone rows were converted into legs
	snap, err := repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Open)
	require.Len(t, snap.Baskets, 1)
	assert.Len(t, snap.Constituents, 2)
	assert.Equal(t, basket.ID, snap.Constituents["LEGA"].BasketID)
}

func TestService_Create_UsesContractLotSizes(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{sizes: map[string]int64{"NIFTYCE": 75, "NIFTYPE": 75}})
	seedPosition(t, repo, "NIFTYCE", 150, 100)
	seedPosition(t, repo, "NIFTYPE", 150, 120)

	basket, err := svc.Create("NIFTYSTRADDLE", []string{"NIFTYCE", "NIFTYPE"}, "")
	require.NoError(t, err)

	// 2 lots per leg, 4 lots over 2 legs
	assert.Equal(t, int64(2), basket.Qty)
	assert.InDelta(t, 150*100.0+150*120.0, basket.Invested, 1e-9)
	assert.Equal(t, ledger.StrategyTrending, basket.StrategyType)
}

func TestService_Create_QtyFloorsAtOne(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{sizes: map[string]int64{"NIFTYCE": 75}})
	seedPosition(t, repo, "NIFTYCE", 50, 100) // less than one lot

	basket, err := svc.Create("TINY", []string{"NIFTYCE"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), basket.Qty)
}

func TestService_Create_FailsOnMissingMember(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{})
	seedPosition(t, repo, "LEGA", 100, 100)

	_, err := svc.Create("BROKEN", []string{"LEGA", "GHOST"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GHOST")

	// The whole conversion rolled back
	snap, err := repo.LoadSnapshot()
	require.NoError(t, err)
	assert.Contains(t, snap.Open, "LEGA")
	assert.Empty(t, snap.Baskets)
}

func TestService_Create_FailsOnDuplicateMember(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{})
	seedPosition(t, repo, "LEGA", 100, 100)

	_, err := svc.Create("DUP", []string{"LEGA", "lega"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestService_Create_FailsOnTakenName(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{})
	seedPosition(t, repo, "LEGA", 100, 100)

	_, err := svc.Create("LEGA", []string{"LEGA"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestService_Add_ExtendsBasket(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{})
	seedPosition(t, repo, "LEGA", 100, 100)
	seedPosition(t, repo, "LEGB", 50, 200)
	seedPosition(t, repo, "LEGC", 60, 50)

	basket, err := svc.Create("COMBO", []string{"LEGA", "LEGB"}, "")
	require.NoError(t, err)
	require.Equal(t, int64(75), basket.Qty)

	extended, err := svc.Add(basket.ID, []string{"LEGC"})
	require.NoError(t, err)

	// total lots = 75*2 + 60 over 3 legs
	assert.Equal(t, int64(70), extended.Qty)
	assert.InDelta(t, 20000.0+3000.0, extended.Invested, 1e-9)

	legs, err := repo.GetConstituents(basket.ID)
	require.NoError(t, err)
	assert.Len(t, legs, 3)
}

func TestService_Add_FailsOnUnknownBasket(t *testing.T) {
	svc, repo := newTestService(t, fixedLots{})
	seedPosition(t, repo, "LEGA", 100, 100)

	_, err := svc.Add(999, []string{"LEGA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
