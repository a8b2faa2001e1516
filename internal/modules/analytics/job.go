package analytics

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dhanvin/tradebook/internal/modules/ledger"
)

// LedgerReader provides the open book and realized history for the
// equity snapshot.
type LedgerReader interface {
	GetOpenPositions() ([]ledger.OpenPosition, error)
	GetClosedRecords(limit int) ([]ledger.ClosedRecord, error)
}

// SnapshotJob records one daily equity point after each trading day.
// Account value is cost-basis: the sum of invested capital plus
// cumulative realized pnl. Mark-to-market would need live quotes,
// which this service deliberately does not fetch.
type SnapshotJob struct {
	reader LedgerReader
	equity *EquityTracker
	log    zerolog.Logger
}

// NewSnapshotJob creates the daily equity snapshot job
func NewSnapshotJob(reader LedgerReader, equity *EquityTracker, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		reader: reader,
		equity: equity,
		log:    log.With().Str("job", "equity_snapshot").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *SnapshotJob) Name() string {
	return "equity_snapshot"
}

// Run computes and stores today's equity point
func (j *SnapshotJob) Run() error {
	open, err := j.reader.GetOpenPositions()
	if err != nil {
		return err
	}
	closed, err := j.reader.GetClosedRecords(0)
	if err != nil {
		return err
	}

	var invested float64
	for _, p := range open {
		invested += p.Notional()
	}

	var realized float64
	for _, r := range closed {
		realized += r.Pnl
	}
	for _, p := range open {
		realized += p.RealizedPnl
	}

	accountValue := invested + realized
	if err := j.equity.Record(time.Now(), accountValue, realized, 0); err != nil {
		return err
	}

	j.log.Info().
		Float64("account_value", accountValue).
		Float64("realized_pnl", realized).
		Msg("Daily equity recorded")
	return nil
}
