package instruments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_LotSize_IndexOverridesWin(t *testing.T) {
	svc := New(zerolog.Nop())
	svc.SetLotSize("NIFTY", 50) // stale dump value loses to the override

	assert.Equal(t, int64(75), svc.LotSize("NIFTY"))
	assert.Equal(t, int64(35), svc.LotSize("BANKNIFTY"))
	assert.Equal(t, int64(20), svc.LotSize("SENSEX"))
}

func TestService_LotSize_DefaultsToOne(t *testing.T) {
	svc := New(zerolog.Nop())
	assert.Equal(t, int64(1), svc.LotSize("RELIANCE"))
}

func TestService_LoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.csv")
	csv := "instrument_token,tradingsymbol,lot_size,exchange\n" +
		"1,RELIANCE,1,NSE\n" +
		"2,NIFTY26AUG24000CE,75,NFO\n" +
		"3,BADROW,notanumber,NFO\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	svc := New(zerolog.Nop())
	require.NoError(t, svc.LoadCSV(path))

	assert.Equal(t, int64(75), svc.LotSize("NIFTY26AUG24000CE"))
	assert.Equal(t, int64(1), svc.LotSize("RELIANCE"))
	assert.Equal(t, int64(1), svc.LotSize("BADROW"))
}

func TestService_LoadCSV_MissingFileIsNotAnError(t *testing.T) {
	svc := New(zerolog.Nop())
	assert.NoError(t, svc.LoadCSV(filepath.Join(t.TempDir(), "absent.csv")))
}

func TestService_LoadCSV_MissingColumnsFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	svc := New(zerolog.Nop())
	assert.Error(t, svc.LoadCSV(path))
}
