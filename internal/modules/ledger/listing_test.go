package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedListing(t *testing.T, repo *Repository) {
	t.Helper()

	_, err := repo.ApplyOperations([]Operation{
		UpsertOpenPosition{Position: OpenPosition{
			Symbol: "INFY", Side: SideLong, Qty: 10, AvgPrice: 100,
			EntryDate: baseTime, MaxExposure: 10, StrategyType: StrategyTrending,
		}},
		AddClosedRecord{Record: ClosedRecord{
			Symbol: "TCS", Side: SideLong, Qty: 5, EntryPrice: 200, ExitPrice: 210,
			EntryDate: baseTime.Add(-24 * time.Hour), ExitDate: baseTime.Add(-time.Hour),
			Pnl: 50, ClosureType: ClosureFull, StrategyType: StrategyTrending,
		}},
		AddClosedRecord{Record: ClosedRecord{
			Symbol: "WIPRO", Side: SideShort, Qty: 8, EntryPrice: 400, ExitPrice: 390,
			EntryDate: baseTime.Add(-48 * time.Hour), ExitDate: baseTime.Add(-2 * time.Hour),
			Pnl: 80, ClosureType: ClosurePartial, StrategyType: StrategyTrending,
		}},
	})
	require.NoError(t, err)
}

func TestRepository_GetPaginatedTrades_MergesOpenAndClosed(t *testing.T) {
	repo := newTestRepo(t)
	seedListing(t, repo)

	page, err := repo.GetPaginatedTrades(0, 50, "entry_date", false, "")
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Data, 3)

	statuses := map[string]string{}
	for _, trade := range page.Data {
		statuses[trade.Symbol] = trade.Status
	}
	assert.Equal(t, "OPEN", statuses["INFY"])
	assert.Equal(t, "CLOSED", statuses["TCS"])
	assert.Equal(t, "PARTIAL", statuses["WIPRO"])
}

func TestRepository_GetPaginatedTrades_StatusFilter(t *testing.T) {
	repo := newTestRepo(t)
	seedListing(t, repo)

	page, err := repo.GetPaginatedTrades(0, 50, "", false, "OPEN")
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "INFY", page.Data[0].Symbol)

	// CLOSED includes still-partial records
	page, err = repo.GetPaginatedTrades(0, 50, "", false, "CLOSED")
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
}

func TestRepository_GetPaginatedTrades_SortAndPaginate(t *testing.T) {
	repo := newTestRepo(t)
	seedListing(t, repo)

	page, err := repo.GetPaginatedTrades(0, 2, "pnl", true, "")
	require.NoError(t, err)

	require.Len(t, page.Data, 2)
	assert.Equal(t, "WIPRO", page.Data[0].Symbol)
	assert.Equal(t, "TCS", page.Data[1].Symbol)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)

	page, err = repo.GetPaginatedTrades(2, 2, "pnl", true, "")
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "INFY", page.Data[0].Symbol)
	assert.Equal(t, 2, page.Page)
}
