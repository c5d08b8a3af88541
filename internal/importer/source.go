// Package importer bulk-loads buildings from CSV, TSV and XLSX files.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Open streams the records of the file at path. The format follows the
// extension: .xlsx reads the first sheet, .tsv is tab separated and
// anything else is parsed as CSV. Both channels are closed when reading
// completes.
func Open(ctx context.Context, path string) (<-chan []string, <-chan error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return streamXLSX(ctx, path)
	case ".tsv":
		return streamFile(ctx, path, '\t')
	default:
		return streamFile(ctx, path, ',')
	}
}

func streamFile(ctx context.Context, path string, delim rune) (<-chan []string, <-chan error) {
	f, err := os.Open(path)
	if err != nil {
		return failed(eris.Wrapf(err, "importer: open %s", path))
	}
	rowCh, errCh := StreamCSV(ctx, f, delim)

	// Close the file once the reader goroutine is done with it.
	outErr := make(chan error, 1)
	go func() {
		defer close(outErr)
		for err := range errCh {
			outErr <- err
		}
		f.Close() //nolint:errcheck
	}()
	return rowCh, outErr
}

// StreamCSV reads delimited records from r and sends them to a channel.
// Fields are trimmed and rows may vary in width.
func StreamCSV(ctx context.Context, r io.Reader, delim rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if delim != 0 {
			reader.Comma = delim
		}
		reader.Comment = '#'
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "importer: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "importer: read row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "importer: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func streamXLSX(ctx context.Context, path string) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrap(err, "importer: open xlsx")
			return
		}
		if len(f.Sheets) == 0 {
			errCh <- eris.Errorf("importer: %s has no sheets", path)
			return
		}

		for _, row := range f.Sheets[0].Rows {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "importer: context cancelled")
				return
			}
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = strings.TrimSpace(cell.String())
			}

			select {
			case rowCh <- cells:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "importer: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func failed(err error) (<-chan []string, <-chan error) {
	rowCh := make(chan []string)
	errCh := make(chan error, 1)
	errCh <- err
	close(rowCh)
	close(errCh)
	return rowCh, errCh
}
