// Package analytics derives realized-performance statistics from the
// closed side of the ledger. Everything here is read-only; it never
// produces ledger operations.
package analytics

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/dhanvin/tradebook/internal/modules/ledger"
	"github.com/dhanvin/tradebook/pkg/formulas"
)

// Summary is the realized performance report
type Summary struct {
	TotalTrades  int     `json:"total_trades"`
	Winners      int     `json:"winners"`
	Losers       int     `json:"losers"`
	WinRate      float64 `json:"win_rate"`
	TotalPnl     float64 `json:"total_pnl"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"` // negative
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	PnlStdDev    float64 `json:"pnl_std_dev"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

// RecordSource supplies closed records for analysis
type RecordSource interface {
	GetClosedRecords(limit int) ([]ledger.ClosedRecord, error)
}

// Service computes realized analytics
type Service struct {
	records RecordSource
	log     zerolog.Logger
}

// NewService creates an analytics service
func NewService(records RecordSource, log zerolog.Logger) *Service {
	return &Service{
		records: records,
		log:     log.With().Str("service", "analytics").Logger(),
	}
}

// Summarize builds the realized performance report over all closed
// records. Still-partial records count too: their pnl is already
// realized even though the position lives on.
func (s *Service) Summarize() (*Summary, error) {
	records, err := s.records.GetClosedRecords(0)
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// Summarize computes the report over an explicit record set
func Summarize(records []ledger.ClosedRecord) *Summary {
	summary := &Summary{TotalTrades: len(records)}
	if len(records) == 0 {
		return summary
	}

	// Drawdown runs over the equity curve in realization order
	ordered := make([]ledger.ClosedRecord, len(records))
	copy(ordered, records)
	sortByExitDate(ordered)

	pnls := make([]float64, len(ordered))
	grossProfit, grossLoss := 0.0, 0.0
	for i, rec := range ordered {
		pnls[i] = rec.Pnl
		summary.TotalPnl += rec.Pnl
		if rec.Pnl >= 0 {
			summary.Winners++
			grossProfit += rec.Pnl
		} else {
			summary.Losers++
			grossLoss += -rec.Pnl
		}
	}

	summary.WinRate = float64(summary.Winners) / float64(summary.TotalTrades)
	if summary.Winners > 0 {
		summary.AvgWin = grossProfit / float64(summary.Winners)
	}
	if summary.Losers > 0 {
		summary.AvgLoss = -grossLoss / float64(summary.Losers)
	}
	if grossLoss > 0 {
		summary.ProfitFactor = grossProfit / grossLoss
	}

	lossRate := 1 - summary.WinRate
	summary.Expectancy = summary.WinRate*summary.AvgWin + lossRate*summary.AvgLoss
	summary.PnlStdDev = formulas.StdDev(pnls)
	summary.MaxDrawdown = formulas.MaxDrawdown(formulas.CumulativeSum(pnls))

	return summary
}

func sortByExitDate(records []ledger.ClosedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ExitDate.Before(records[j].ExitDate)
	})
}
