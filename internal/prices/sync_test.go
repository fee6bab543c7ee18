package prices

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catalog-cli/internal/store"
)

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Precios")
	require.NoError(t, err)

	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().Value = v
		}
	}

	path := filepath.Join(t.TempDir(), "pricelist.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseFile(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Codigo", "Descripcion", "Precio", "Categoria"},
		{"HP-M428", "Impresora HP LaserJet", "349.99", "printers"},
		{"LG-24", "Monitor LG 24", "189,50", "monitors"},
		{"", "sin codigo", "10.00", "misc"},
		{"BAD-1", "precio roto", "n/a", "misc"},
	})

	rows, bad, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, bad)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Code: "HP-M428", Description: "Impresora HP LaserJet", Price: 349.99, Category: "printers"}, rows[0])
	assert.InDelta(t, 189.50, rows[1].Price, 0.001, "comma decimal separator accepted")
}

func TestParsePrice(t *testing.T) {
	cases := map[string]float64{
		"349.99":   349.99,
		"189,50":   189.50,
		"$1,349.99": 1349.99,
		" 5 ":      5,
	}
	for in, want := range cases {
		got, err := parsePrice(in)
		require.NoError(t, err, "input %q", in)
		assert.InDelta(t, want, got, 0.001, "input %q", in)
	}

	_, err := parsePrice("n/a")
	assert.Error(t, err)
}

// priceStore records upserts.
type priceStore struct {
	store.Store
	upserts map[string]float64
}

func (s *priceStore) UpsertPrice(_ context.Context, code string, price float64, _ string) error {
	s.upserts[code] = price
	return nil
}

func TestSyncer_Apply(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Codigo", "Descripcion", "Precio", "Categoria"},
		{"HP-M428", "Impresora", "349.99", "printers"},
		{"LG-24", "Monitor", "189.50", "monitors"},
	})

	st := &priceStore{upserts: map[string]float64{}}
	syncer := NewSyncer(st, FTPConfig{})

	summary, err := syncer.Apply(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Upserted)
	assert.Zero(t, summary.BadRows)
	assert.InDelta(t, 349.99, st.upserts["HP-M428"], 0.001)
}
