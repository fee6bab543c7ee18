package prices

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Row is one parsed price-list line.
type Row struct {
	Code        string
	Description string
	Price       float64
	Category    string
}

// column order of the supplier's price list.
const (
	colCode = iota
	colDescription
	colPrice
	colCategory
	minColumns = 3 // category is optional
)

// parsePrice accepts both decimal separators the supplier has shipped.
func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "$", ""))
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	return strconv.ParseFloat(s, 64)
}

// ParseFile reads the price list workbook. Rows with a blank code or an
// unparseable price are returned in bad for reporting, not silently dropped.
func ParseFile(path string) (rows []Row, bad int, err error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, 0, eris.Wrap(err, "prices: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, 0, eris.New("prices: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	for i, row := range sheet.Rows {
		if i == 0 {
			// header
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if len(cells) < minColumns {
			if len(cells) > 0 {
				bad++
			}
			continue
		}

		code := cells[colCode]
		price, perr := parsePrice(cells[colPrice])
		if code == "" || perr != nil || price < 0 {
			bad++
			continue
		}

		r := Row{
			Code:        code,
			Description: cells[colDescription],
			Price:       price,
		}
		if len(cells) > colCategory {
			r.Category = cells[colCategory]
		}
		rows = append(rows, r)
	}
	return rows, bad, nil
}
