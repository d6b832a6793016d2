package schema

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/zoobzio/cellz"
)

// RowFunc receives every data record read by Decode. err is a *RowError when
// the record was rejected; values then hold the cells that were accepted.
// Returning an error stops decoding.
type RowFunc func(line int, values []cellz.Cell, err error) error

// Decode reads CSV from r through the session. The header record is checked
// first when the schema declares one. Row errors are passed to fn rather than
// returned, so one bad record does not end the file.
func Decode(ctx context.Context, s *Session, r io.Reader, fn RowFunc) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if s.registry.header {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		if err := s.ReadHeader(record); err != nil {
			return err
		}
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		values, err := s.ReadRow(ctx, record)
		var rowErr *RowError
		if err != nil && !errors.As(err, &rowErr) {
			return err
		}
		if err := fn(s.Line(), values, err); err != nil {
			return err
		}
	}
}

// Encode writes rows as CSV through the session, starting with the header
// when the schema declares one. The first rejected row stops encoding.
func Encode(ctx context.Context, s *Session, w io.Writer, rows [][]cellz.Cell) error {
	cw := csv.NewWriter(w)
	if s.registry.header {
		if err := cw.Write(s.Header()); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, row := range rows {
		record, err := s.WriteRow(ctx, row)
		if err != nil {
			return err
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
