package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository is the persistence collaborator for the ledger: it
// assembles the Snapshot the engine reads and applies the Operation
// list the engine returns, transactionally.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// LoadSnapshot assembles the read view for one reconciliation run:
// standalone positions, basket rows, constituents, open PARTIAL
// records indexed by symbol, and the processed order-id set.
func (r *Repository) LoadSnapshot() (*Snapshot, error) {
	snap := NewSnapshot()

	positions, err := r.allOpenPositions()
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		if pos.IsBasket {
			snap.Baskets[pos.ID] = pos
		} else {
			snap.Open[pos.Symbol] = pos
		}
	}

	constituents, err := r.allConstituents()
	if err != nil {
		return nil, err
	}
	for _, c := range constituents {
		snap.Constituents[c.Symbol] = ConstituentRef{BasketID: c.BasketID, Constituent: c}
	}

	// Only plain PARTIAL records merge; PARTIAL_BASKET rows are
	// append-only and must not absorb standalone exits.
	partials, err := r.partialRecords()
	if err != nil {
		return nil, err
	}
	for _, rec := range partials {
		snap.PendingPartials[rec.Symbol] = PendingPartial{Record: rec}
	}

	orderIDs, err := r.processedOrderIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range orderIDs {
		snap.ProcessedOrders[id] = struct{}{}
	}

	return snap, nil
}

// ApplyOperations commits an operation list in a single transaction.
// Either every operation lands or none does; partial application of a
// batch would corrupt the merge invariants. Returns the number of
// operations applied.
func (r *Repository) ApplyOperations(ops []Operation) (int, error) {
	return r.CommitRun(ops, nil)
}

// CommitRun applies an operation list and records the processed fills
// in the orderbook, all in one transaction. Operations and order ids
// land together or not at all, so a failed run leaves every fill
// replayable and a committed run leaves every fill inert.
func (r *Repository) CommitRun(ops []Operation, fills []OrderFill) (int, error) {
	if len(ops) == 0 && len(fills) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Provisional ids allocated by the engine for records created in
	// this batch resolve to real row ids here, inside the commit.
	provisional := make(map[string]int64)

	count := 0
	for _, op := range ops {
		switch op := op.(type) {
		case UpsertOpenPosition:
			err = r.upsertOpenPosition(tx, op.Position)
		case DeleteOpenPosition:
			err = r.deleteOpenPosition(tx, op.Symbol)
		case AddClosedRecord:
			var id int64
			id, err = r.insertClosedRecord(tx, op.Record)
			if err == nil && op.ProvisionalID != "" {
				provisional[op.ProvisionalID] = id
			}
		case UpdateClosedRecord:
			err = r.updateClosedRecord(tx, op, provisional)
		case UpdateConstituent:
			err = r.updateConstituent(tx, op)
		case BasketAdjustAdd:
			err = r.basketAdd(tx, op)
		case BasketAdjustReduce:
			err = r.basketReduce(tx, op)
		default:
			err = fmt.Errorf("unhandled operation kind %T", op)
		}

		if err != nil {
			return 0, fmt.Errorf("failed to apply operation %d (%T): %w", count, op, err)
		}
		count++
	}

	if err := recordOrders(tx, fills); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit operations: %w", err)
	}

	r.log.Info().Int("operations", count).Int("orders", len(fills)).Msg("Run committed")
	return count, nil
}

// recordOrders makes fills permanently inert to the engine. Existing
// order ids are left untouched, which makes retrying a whole batch
// safe.
func recordOrders(tx *sql.Tx, fills []OrderFill) error {
	query := `
		INSERT OR IGNORE INTO orderbook
		(order_id, symbol, side, qty, price, status, order_timestamp, exchange, product, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().Format(time.RFC3339)
	for _, f := range fills {
		_, err := tx.Exec(query,
			f.OrderID,
			f.Symbol,
			string(f.Side),
			f.Qty,
			f.Price,
			"COMPLETE",
			f.Timestamp.Format(time.RFC3339Nano),
			nullString(f.Exchange),
			nullString(f.Product),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to save order %s: %w", f.OrderID, err)
		}
	}
	return nil
}

// --- operation appliers ---

func (r *Repository) upsertOpenPosition(tx *sql.Tx, pos OpenPosition) error {
	query := `
		INSERT INTO open_positions
		(symbol, side, qty, avg_price, invested, entry_date, exchange, product,
		 max_exposure, strategy_type, is_basket, realized_pnl, stop_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			invested = excluded.invested,
			entry_date = excluded.entry_date,
			exchange = excluded.exchange,
			product = excluded.product,
			max_exposure = excluded.max_exposure,
			strategy_type = excluded.strategy_type,
			is_basket = excluded.is_basket,
			realized_pnl = excluded.realized_pnl,
			stop_loss = excluded.stop_loss
	`

	_, err := tx.Exec(query,
		pos.Symbol,
		string(pos.Side),
		pos.Qty,
		pos.AvgPrice,
		pos.Invested,
		pos.EntryDate.Format(time.RFC3339Nano),
		nullString(pos.Exchange),
		nullString(pos.Product),
		pos.MaxExposure,
		pos.StrategyType,
		boolToInt(pos.IsBasket),
		pos.RealizedPnl,
		pos.StopLoss,
		time.Now().Format(time.RFC3339),
	)
	return err
}

func (r *Repository) deleteOpenPosition(tx *sql.Tx, symbol string) error {
	// Basket legs go with the row via ON DELETE CASCADE
	_, err := tx.Exec("DELETE FROM open_positions WHERE symbol = ?", symbol)
	return err
}

func (r *Repository) insertClosedRecord(tx *sql.Tx, rec ClosedRecord) (int64, error) {
	query := `
		INSERT INTO closed_records
		(symbol, side, qty, entry_price, exit_price, entry_date, exit_date,
		 pnl, closure_type, exchange, product, strategy_type, basket_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := tx.Exec(query,
		rec.Symbol,
		string(rec.Side),
		rec.Qty,
		rec.EntryPrice,
		rec.ExitPrice,
		rec.EntryDate.Format(time.RFC3339Nano),
		rec.ExitDate.Format(time.RFC3339Nano),
		rec.Pnl,
		string(rec.ClosureType),
		nullString(rec.Exchange),
		nullString(rec.Product),
		rec.StrategyType,
		rec.BasketID,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) updateClosedRecord(tx *sql.Tx, op UpdateClosedRecord, provisional map[string]int64) error {
	id := op.ID
	if id == 0 {
		resolved, ok := provisional[op.ProvisionalID]
		if !ok {
			return fmt.Errorf("unknown provisional record id %q", op.ProvisionalID)
		}
		id = resolved
	}

	res, err := tx.Exec(`
		UPDATE closed_records
		SET qty = ?, pnl = ?, entry_price = ?, exit_price = ?, closure_type = ?, exit_date = ?
		WHERE id = ?`,
		op.Qty,
		op.Pnl,
		op.EntryPrice,
		op.ExitPrice,
		string(op.ClosureType),
		op.ExitDate.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("closed record %d not found", id)
	}
	return nil
}

func (r *Repository) updateConstituent(tx *sql.Tx, op UpdateConstituent) error {
	if op.Qty <= 0 {
		_, err := tx.Exec("DELETE FROM basket_constituents WHERE id = ?", op.ID)
		return err
	}

	_, err := tx.Exec(
		"UPDATE basket_constituents SET qty = ?, avg_price = ? WHERE id = ?",
		op.Qty, op.AvgPrice, op.ID,
	)
	return err
}

func (r *Repository) basketAdd(tx *sql.Tx, op BasketAdjustAdd) error {
	_, err := tx.Exec(`
		UPDATE open_positions
		SET invested = invested + ?,
		    max_exposure = MAX(max_exposure, invested + ?)
		WHERE id = ? AND is_basket = 1`,
		op.Amount, op.Amount, op.BasketID,
	)
	return err
}

func (r *Repository) basketReduce(tx *sql.Tx, op BasketAdjustReduce) error {
	_, err := tx.Exec(`
		UPDATE open_positions
		SET invested = invested - ?,
		    realized_pnl = realized_pnl + ?
		WHERE id = ? AND is_basket = 1`,
		op.CostRemoved, op.PnlRealized, op.BasketID,
	)
	return err
}

// --- reads ---

// GetOpenPositions returns all open rows, baskets included, with the
// basket per-lot price derived for display.
func (r *Repository) GetOpenPositions() ([]OpenPosition, error) {
	positions, err := r.allOpenPositions()
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].IsBasket {
			positions[i].AvgPrice = positions[i].PerLotPrice()
		}
	}
	return positions, nil
}

// GetOpenPosition returns the open position for a symbol, or nil
func (r *Repository) GetOpenPosition(symbol string) (*OpenPosition, error) {
	row := r.db.QueryRow(selectOpenPositions+" WHERE symbol = ?", symbol)
	pos, err := scanOpenPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open position: %w", err)
	}
	return &pos, nil
}

// GetConstituents returns the legs of one basket
func (r *Repository) GetConstituents(basketID int64) ([]BasketConstituent, error) {
	rows, err := r.db.Query(selectConstituents+" WHERE basket_id = ? ORDER BY id", basketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get constituents: %w", err)
	}
	defer rows.Close()
	return collectConstituents(rows)
}

// GetClosedRecords returns closed records, most recent exit first
func (r *Repository) GetClosedRecords(limit int) ([]ClosedRecord, error) {
	query := selectClosedRecords + " ORDER BY exit_date DESC"
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = r.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closed records: %w", err)
	}
	defer rows.Close()
	return collectClosedRecords(rows)
}

const selectOpenPositions = `
	SELECT id, symbol, side, qty, avg_price, invested, entry_date, exchange,
	       product, max_exposure, strategy_type, is_basket, realized_pnl, stop_loss
	FROM open_positions`

const selectConstituents = `
	SELECT id, basket_id, symbol, side, qty, avg_price, entry_date, exchange, product
	FROM basket_constituents`

const selectClosedRecords = `
	SELECT id, symbol, side, qty, entry_price, exit_price, entry_date, exit_date,
	       pnl, closure_type, exchange, product, strategy_type, basket_id
	FROM closed_records`

func (r *Repository) allOpenPositions() ([]OpenPosition, error) {
	rows, err := r.db.Query(selectOpenPositions)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var positions []OpenPosition
	for rows.Next() {
		pos, err := scanOpenPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (r *Repository) allConstituents() ([]BasketConstituent, error) {
	rows, err := r.db.Query(selectConstituents)
	if err != nil {
		return nil, fmt.Errorf("failed to query constituents: %w", err)
	}
	defer rows.Close()
	return collectConstituents(rows)
}

func (r *Repository) partialRecords() ([]ClosedRecord, error) {
	rows, err := r.db.Query(selectClosedRecords + " WHERE closure_type = 'PARTIAL' ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query partial records: %w", err)
	}
	defer rows.Close()
	return collectClosedRecords(rows)
}

func (r *Repository) processedOrderIDs() ([]string, error) {
	rows, err := r.db.Query("SELECT order_id FROM orderbook")
	if err != nil {
		return nil, fmt.Errorf("failed to query orderbook: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- scanning ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOpenPosition(row rowScanner) (OpenPosition, error) {
	var pos OpenPosition
	var side string
	var entryDate string
	var exchange, product sql.NullString
	var isBasket int
	var stopLoss sql.NullFloat64

	err := row.Scan(
		&pos.ID, &pos.Symbol, &side, &pos.Qty, &pos.AvgPrice, &pos.Invested,
		&entryDate, &exchange, &product, &pos.MaxExposure, &pos.StrategyType,
		&isBasket, &pos.RealizedPnl, &stopLoss,
	)
	if err != nil {
		return pos, err
	}

	pos.Side = Side(side)
	pos.EntryDate = parseTime(entryDate)
	pos.Exchange = exchange.String
	pos.Product = product.String
	pos.IsBasket = isBasket != 0
	if stopLoss.Valid {
		pos.StopLoss = &stopLoss.Float64
	}

	return pos, nil
}

func collectConstituents(rows *sql.Rows) ([]BasketConstituent, error) {
	var out []BasketConstituent
	for rows.Next() {
		var c BasketConstituent
		var side, entryDate string
		var exchange, product sql.NullString

		err := rows.Scan(&c.ID, &c.BasketID, &c.Symbol, &side, &c.Qty,
			&c.AvgPrice, &entryDate, &exchange, &product)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constituent: %w", err)
		}

		c.Side = Side(side)
		c.EntryDate = parseTime(entryDate)
		c.Exchange = exchange.String
		c.Product = product.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func collectClosedRecords(rows *sql.Rows) ([]ClosedRecord, error) {
	var out []ClosedRecord
	for rows.Next() {
		var rec ClosedRecord
		var side, closureType, entryDate, exitDate string
		var exchange, product sql.NullString
		var basketID sql.NullInt64

		err := rows.Scan(&rec.ID, &rec.Symbol, &side, &rec.Qty, &rec.EntryPrice,
			&rec.ExitPrice, &entryDate, &exitDate, &rec.Pnl, &closureType,
			&exchange, &product, &rec.StrategyType, &basketID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed record: %w", err)
		}

		rec.Side = Side(side)
		rec.ClosureType = ClosureType(closureType)
		rec.EntryDate = parseTime(entryDate)
		rec.ExitDate = parseTime(exitDate)
		rec.Exchange = exchange.String
		rec.Product = product.String
		if basketID.Valid {
			rec.BasketID = &basketID.Int64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", value)
	return t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
