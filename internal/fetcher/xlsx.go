package fetcher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // overrides SheetIndex
	SkipRows   int    // rows above the header
}

// StreamXLSX opens the workbook at path, takes the first row after SkipRows
// as the header, and streams the rest. Fully blank rows are skipped.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open xlsx %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) <= opts.SkipRows {
		return nil, eris.Errorf("fetcher: sheet %q has no header row", sheet.Name)
	}

	header := rowToStrings(sheet.Rows[opts.SkipRows])
	rows := make(chan Row, 64)
	t := &Table{Header: header, Rows: rows}

	go func() {
		defer close(rows)
		for i := opts.SkipRows + 1; i < len(sheet.Rows); i++ {
			if err := ctx.Err(); err != nil {
				t.err = eris.Wrap(err, "fetcher: xlsx context cancelled")
				return
			}

			cells := rowToStrings(sheet.Rows[i])
			if blank(cells) {
				continue
			}

			select {
			case rows <- Row{Line: i + 1, Values: cells}:
			case <-ctx.Done():
				t.err = eris.Wrap(ctx.Err(), "fetcher: xlsx context cancelled")
				return
			}
		}
	}()

	return t, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetcher: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
