package ledger

import "time"

// Operation is one ledger mutation derived by the reconciliation
// engine. The set of kinds is closed: the applier switches over every
// concrete type and rejects anything else, so adding a kind without
// handling it fails loudly instead of silently dropping writes.
//
// A batch of operations is applied transactionally, all or nothing.
type Operation interface {
	isOperation()
}

// UpsertOpenPosition inserts or replaces the open position for
// Position.Symbol.
type UpsertOpenPosition struct {
	Position OpenPosition
}

// DeleteOpenPosition removes the open position (standalone or basket
// row) for Symbol.
type DeleteOpenPosition struct {
	Symbol string
}

// AddClosedRecord inserts a new closed record. ProvisionalID carries
// an engine-allocated identifier for records with a partial closure
// type, so later operations in the same batch can merge into the row
// before the database has assigned it an id.
type AddClosedRecord struct {
	Record        ClosedRecord
	ProvisionalID string
}

// UpdateClosedRecord merges accumulated exit state into an existing
// closed record. Exactly one of ID or ProvisionalID is set: ID for
// rows already persisted when the batch started, ProvisionalID for
// rows created earlier in the same batch.
type UpdateClosedRecord struct {
	ID            int64
	ProvisionalID string

	Qty         int64
	Pnl         float64
	EntryPrice  float64
	ExitPrice   float64
	ClosureType ClosureType
	ExitDate    time.Time
}

// UpdateConstituent rewrites a basket leg's quantity and cost basis.
// Qty 0 means the leg is exhausted and the row is deleted.
type UpdateConstituent struct {
	ID       int64
	Qty      int64
	AvgPrice float64
}

// BasketAdjustAdd increases the parent basket's invested capital
// after a constituent accumulation.
type BasketAdjustAdd struct {
	BasketID int64
	Amount   float64
}

// BasketAdjustReduce removes cost proportionally after a constituent
// exit and accrues the realized pnl on the basket row.
type BasketAdjustReduce struct {
	BasketID    int64
	CostRemoved float64
	PnlRealized float64
}

func (UpsertOpenPosition) isOperation() {}
func (DeleteOpenPosition) isOperation() {}
func (AddClosedRecord) isOperation()    {}
func (UpdateClosedRecord) isOperation() {}
func (UpdateConstituent) isOperation()  {}
func (BasketAdjustAdd) isOperation()    {}
func (BasketAdjustReduce) isOperation() {}
