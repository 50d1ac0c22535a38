package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Row is one data row of a table. Line is 1-based and counts the header.
type Row struct {
	Line   int
	Values []string
}

// Table streams the rows of a CSV or XLSX file. Drain Rows, then check Err.
type Table struct {
	Header []string
	Rows   <-chan Row

	err    error
	closer io.Closer
}

// Err returns the error that stopped the stream, if any. It is only valid
// once Rows has been closed.
func (t *Table) Err() error { return t.err }

// Close releases the underlying file.
func (t *Table) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// Index returns the position of the column named name, ignoring case and
// surrounding space, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads the header row of r and streams the remaining rows.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("fetcher: csv has no header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read csv header")
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	trimFields(header, opts.TrimSpace)

	rows := make(chan Row, 64)
	t := &Table{Header: header, Rows: rows}

	go func() {
		defer close(rows)
		for {
			if err := ctx.Err(); err != nil {
				t.err = eris.Wrap(err, "fetcher: csv context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				t.err = eris.Wrap(err, "fetcher: read csv row")
				return
			}
			line, _ := reader.FieldPos(0)
			trimFields(record, opts.TrimSpace)

			select {
			case rows <- Row{Line: line, Values: record}:
			case <-ctx.Done():
				t.err = eris.Wrap(ctx.Err(), "fetcher: csv context cancelled")
				return
			}
		}
	}()

	return t, nil
}

func trimFields(record []string, trim bool) {
	if !trim {
		return
	}
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
}

// OpenTable opens a .csv or .xlsx file by extension. Close the table when
// done.
func OpenTable(ctx context.Context, path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		t, err := StreamCSV(ctx, f, CSVOptions{TrimSpace: true})
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		t.closer = f
		return t, nil
	case ".xlsx":
		return StreamXLSX(ctx, path, XLSXOptions{})
	default:
		return nil, eris.Errorf("fetcher: unsupported table format %q", filepath.Ext(path))
	}
}
