package ledger

// ConstituentRef ties a basket leg to its parent basket row id
type ConstituentRef struct {
	BasketID    int64
	Constituent BasketConstituent
}

// PendingPartial is a closed record that can still absorb later
// exits. ProvisionalID is set when the record was created earlier in
// the current batch and has no database id yet.
type PendingPartial struct {
	Record        ClosedRecord
	ProvisionalID string
}

// Snapshot is the in-memory read view of ledger state assembled from
// storage before a reconciliation run. The engine never touches
// storage directly: it reads a Snapshot and returns Operations.
//
// Pending partials are indexed by symbol so merge lookups are O(1)
// instead of a scan over closed records.
type Snapshot struct {
	Open            map[string]OpenPosition   // standalone positions by symbol
	Baskets         map[int64]OpenPosition    // basket rows by id
	Constituents    map[string]ConstituentRef // basket legs by symbol
	PendingPartials map[string]PendingPartial // open partial records by symbol
	ProcessedOrders map[string]struct{}       // broker order ids already applied
}

// NewSnapshot returns an empty snapshot with all maps allocated
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Open:            make(map[string]OpenPosition),
		Baskets:         make(map[int64]OpenPosition),
		Constituents:    make(map[string]ConstituentRef),
		PendingPartials: make(map[string]PendingPartial),
		ProcessedOrders: make(map[string]struct{}),
	}
}

// PendingPartial returns the open partial record for a symbol, if any
func (s *Snapshot) PendingPartial(symbol string) (PendingPartial, bool) {
	p, ok := s.PendingPartials[symbol]
	return p, ok
}

// IsProcessed reports whether a broker order id was already applied
func (s *Snapshot) IsProcessed(orderID string) bool {
	_, ok := s.ProcessedOrders[orderID]
	return ok
}

// clone deep-copies the snapshot into an independent working state.
// The engine mutates the copy as it consumes fills so later fills in
// a batch see the effects of earlier ones; the caller's snapshot
// stays untouched and can be reused if the batch is discarded.
func (s *Snapshot) clone() *Snapshot {
	c := NewSnapshot()
	for k, v := range s.Open {
		c.Open[k] = v
	}
	for k, v := range s.Baskets {
		c.Baskets[k] = v
	}
	for k, v := range s.Constituents {
		c.Constituents[k] = v
	}
	for k, v := range s.PendingPartials {
		c.PendingPartials[k] = v
	}
	for k := range s.ProcessedOrders {
		c.ProcessedOrders[k] = struct{}{}
	}
	return c
}
