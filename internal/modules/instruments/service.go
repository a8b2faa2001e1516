// Package instruments provides lot-size lookup for tradable symbols.
// The data comes from a broker instrument dump (CSV) loaded into
// memory; the service is injected wherever lot sizes are needed
// instead of living behind a process-wide singleton.
package instruments

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Index contracts trade in fixed lots that predate any instrument
// dump; these win over the CSV and over the default.
var indexLotSizes = map[string]int64{
	"NIFTY":      75,
	"BANKNIFTY":  35,
	"FINNIFTY":   65,
	"MIDCPNIFTY": 140,
	"SENSEX":     20,
}

// Service answers lot_size(symbol) queries
type Service struct {
	lotSizes map[string]int64
	log      zerolog.Logger
}

// New creates an instrument service with an empty lookup table.
// Unknown symbols fall back to lot size 1.
func New(log zerolog.Logger) *Service {
	return &Service{
		lotSizes: make(map[string]int64),
		log:      log.With().Str("service", "instruments").Logger(),
	}
}

// LoadCSV reads an instrument dump with at least the columns
// "tradingsymbol" and "lot_size". A missing file is not an error;
// lookups just fall back to defaults.
func (s *Service) LoadCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn().Str("path", path).Msg("Instruments file not found, lot sizes fall back to defaults")
			return nil
		}
		return fmt.Errorf("failed to open instruments file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read instruments header: %w", err)
	}

	symbolCol, lotCol := -1, -1
	for i, name := range header {
		switch name {
		case "tradingsymbol":
			symbolCol = i
		case "lot_size":
			lotCol = i
		}
	}
	if symbolCol < 0 || lotCol < 0 {
		return fmt.Errorf("instruments file missing tradingsymbol/lot_size columns")
	}

	loaded := 0
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if len(record) <= symbolCol || len(record) <= lotCol {
			continue
		}
		lot, err := strconv.ParseInt(record[lotCol], 10, 64)
		if err != nil || lot <= 0 {
			continue
		}
		s.lotSizes[record[symbolCol]] = lot
		loaded++
	}

	s.log.Info().Int("instruments", loaded).Msg("Instruments loaded")
	return nil
}

// LotSize returns the lot size for a symbol. Index contract overrides
// apply first, then the loaded dump, then 1.
func (s *Service) LotSize(symbol string) int64 {
	if lot, ok := indexLotSizes[symbol]; ok {
		return lot
	}
	if lot, ok := s.lotSizes[symbol]; ok {
		return lot
	}
	return 1
}

// SetLotSize overrides one symbol's lot size (used by tests and
// manual corrections).
func (s *Service) SetLotSize(symbol string, lot int64) {
	s.lotSizes[symbol] = lot
}
