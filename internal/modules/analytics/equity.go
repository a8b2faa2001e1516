package analytics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
)

// EMA windows tracked on the equity curve
var emaPeriods = []int{10, 21, 50, 200}

// DailyEquity is one point of the account-value curve
type DailyEquity struct {
	Date          string   `json:"date"` // YYYY-MM-DD
	AccountValue  float64  `json:"account_value"`
	RealizedPnl   float64  `json:"realized_pnl"`
	UnrealizedPnl float64  `json:"unrealized_pnl"`
	EMA10         *float64 `json:"ema_10,omitempty"`
	EMA21         *float64 `json:"ema_21,omitempty"`
	EMA50         *float64 `json:"ema_50,omitempty"`
	EMA200        *float64 `json:"ema_200,omitempty"`
}

// EquityTracker maintains the daily account-value series and its
// moving averages.
type EquityTracker struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewEquityTracker creates an equity tracker
func NewEquityTracker(db *sql.DB, log zerolog.Logger) *EquityTracker {
	return &EquityTracker{
		db:  db,
		log: log.With().Str("service", "equity").Logger(),
	}
}

// Record upserts today's point and refreshes the EMA columns over the
// whole stored series.
func (t *EquityTracker) Record(date time.Time, accountValue, realizedPnl, unrealizedPnl float64) error {
	day := date.Format("2006-01-02")

	_, err := t.db.Exec(`
		INSERT INTO daily_equity (date, account_value, realized_pnl, unrealized_pnl)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			account_value = excluded.account_value,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl`,
		day, accountValue, realizedPnl, unrealizedPnl,
	)
	if err != nil {
		return fmt.Errorf("failed to record daily equity: %w", err)
	}

	return t.refreshEMAs()
}

// History returns the equity curve oldest first
func (t *EquityTracker) History() ([]DailyEquity, error) {
	rows, err := t.db.Query(`
		SELECT date, account_value, realized_pnl, unrealized_pnl, ema_10, ema_21, ema_50, ema_200
		FROM daily_equity ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily equity: %w", err)
	}
	defer rows.Close()

	var out []DailyEquity
	for rows.Next() {
		var e DailyEquity
		var emas [4]sql.NullFloat64
		err := rows.Scan(&e.Date, &e.AccountValue, &e.RealizedPnl, &e.UnrealizedPnl,
			&emas[0], &emas[1], &emas[2], &emas[3])
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily equity: %w", err)
		}
		targets := []**float64{&e.EMA10, &e.EMA21, &e.EMA50, &e.EMA200}
		for i, v := range emas {
			if v.Valid {
				f := v.Float64
				*targets[i] = &f
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// refreshEMAs recomputes every EMA column from the full close series.
// The series is small (one point per trading day) so a full pass is
// cheaper than being clever.
func (t *EquityTracker) refreshEMAs() error {
	history, err := t.History()
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	closes := make([]float64, len(history))
	for i, e := range history {
		closes[i] = e.AccountValue
	}

	columns := map[int]string{10: "ema_10", 21: "ema_21", 50: "ema_50", 200: "ema_200"}
	for _, period := range emaPeriods {
		if len(closes) < period {
			continue
		}
		ema := talib.Ema(closes, period)
		for i, e := range history {
			if i < period-1 {
				continue
			}
			_, err := t.db.Exec(
				fmt.Sprintf("UPDATE daily_equity SET %s = ? WHERE date = ?", columns[period]),
				ema[i], e.Date,
			)
			if err != nil {
				return fmt.Errorf("failed to update %s: %w", columns[period], err)
			}
		}
	}

	return nil
}
