package schema

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/cellz"
)

const ordersYAML = `
name: orders
header: true
columns:
  - name: id
    type: long
    unique: true
  - name: price
    type: double
    pattern: "#,##0.00"
    min: "0.00"
  - name: shipped
    label: Shipped On
    type: date
    timezone: UTC
    optional: true
  - name: express
    type: boolean
    primitive: true
    optional: true
`

const ordersTOML = `
name = "orders"
header = true

[[columns]]
name = "id"
type = "long"
unique = true

[[columns]]
name = "price"
type = "double"
pattern = "#,##0.00"
min = "0.00"
`

func compile(t *testing.T, src string) *Registry {
	t.Helper()
	s, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)
	r, err := Compile(s)
	require.NoError(t, err)
	return r
}

func open(t *testing.T, r *Registry, skip bool) (*Session, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s, err := r.NewSession(skip, WithLogger(logger), WithClock(clockz.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, hook
}

func TestParse(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		s, err := Parse([]byte(ordersYAML), FormatYAML)
		require.NoError(t, err)
		assert.Equal(t, "orders", s.Name)
		assert.True(t, s.Header)
		require.Len(t, s.Columns, 4)
		assert.Equal(t, cellz.KindDouble, s.Columns[1].Type)
		assert.Equal(t, "#,##0.00", s.Columns[1].Pattern)
		assert.Equal(t, "Shipped On", s.Columns[2].HeaderLabel())
		assert.Equal(t, "id", s.Columns[0].HeaderLabel())
		assert.True(t, s.Columns[3].Primitive)
	})

	t.Run("TOML", func(t *testing.T) {
		s, err := Parse([]byte(ordersTOML), FormatTOML)
		require.NoError(t, err)
		require.Len(t, s.Columns, 2)
		assert.True(t, s.Columns[0].Unique)
		assert.Equal(t, "0.00", s.Columns[1].Min)
	})

	t.Run("Unknown Keys", func(t *testing.T) {
		_, err := Parse([]byte("columns:\n  - name: a\n    type: int\n    maximum: 3\n"), FormatYAML)
		assert.Error(t, err)

		_, err = Parse([]byte("[[columns]]\nname = \"a\"\ntype = \"int\"\nmaximum = \"3\"\n"), FormatTOML)
		assert.Error(t, err)
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		_, err := Parse([]byte("columns:\n  - name: a\n    type: complex\n"), FormatYAML)
		assert.Error(t, err)
	})

	t.Run("Round Trip", func(t *testing.T) {
		s, err := Parse([]byte(ordersYAML), FormatYAML)
		require.NoError(t, err)
		data, err := Marshal(s)
		require.NoError(t, err)
		again, err := Parse(data, FormatYAML)
		require.NoError(t, err)
		require.Len(t, again.Columns, 4)
		assert.Equal(t, cellz.KindDate, again.Columns[2].Type)
		assert.Equal(t, "Shipped On", again.Columns[2].Label)
		assert.Equal(t, "0.00", again.Columns[1].Min)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(ordersTOML, `name = "orders"`, "", 1)), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "orders", s.Name, "name defaults to the file name")

	_, err = LoadFile(filepath.Join(dir, "orders.json"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompile(t *testing.T) {
	t.Run("Orders By Position", func(t *testing.T) {
		r := compile(t, `
columns:
  - name: b
    type: int
    position: 1
  - name: a
    type: string
    position: 0
`)
		assert.Equal(t, []string{"a", "b"}, r.Header())
		assert.Equal(t, 2, r.Width())
		f, ok := r.Field("b")
		require.True(t, ok)
		assert.Equal(t, 1, f.Position)
	})

	t.Run("Shares Formats", func(t *testing.T) {
		r := compile(t, `
columns:
  - name: a
    type: double
    pattern: "#,##0.00"
  - name: b
    type: double
    pattern: "#,##0.00"
`)
		assert.Equal(t, 1, r.Formats())
	})

	t.Run("Reports Every Error", func(t *testing.T) {
		s, err := Parse([]byte(`
columns:
  - name: a
    type: int
    min: "abc"
  - name: a
    type: int
  - name: ""
    type: int
  - name: d
    type: date
    currency: USD
  - name: e
    type: int
    position: 9
`), FormatYAML)
		require.NoError(t, err)

		_, err = Compile(s)
		require.Error(t, err)
		assert.ErrorIs(t, err, cellz.ErrConfiguration)
		assert.ErrorIs(t, err, cellz.ErrIncompatibleOption)
		assert.ErrorIs(t, err, ErrDuplicateColumn)
		assert.ErrorIs(t, err, ErrUnnamedColumn)
		assert.ErrorIs(t, err, ErrBadPosition)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Compile(&Schema{})
		assert.ErrorIs(t, err, ErrNoColumns)
		_, err = Compile(nil)
		assert.ErrorIs(t, err, ErrNoColumns)
	})
}

func TestSessionRead(t *testing.T) {
	ctx := context.Background()
	r := compile(t, ordersYAML)

	t.Run("Header", func(t *testing.T) {
		s, _ := open(t, r, false)
		assert.NoError(t, s.ReadHeader([]string{"\ufeffid", "price", " Shipped On ", "express"}))
		assert.ErrorIs(t, s.ReadHeader([]string{"id", "cost", "Shipped On", "express"}), ErrHeaderMismatch)
		assert.ErrorIs(t, s.ReadHeader([]string{"id"}), ErrColumnCount)
		assert.Equal(t, 3, s.Line())
	})

	t.Run("Converts Cells", func(t *testing.T) {
		s, _ := open(t, r, false)
		values, err := s.ReadRow(ctx, []string{"1", "1,234.50", "2024-03-01", "yes"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), values[0])
		assert.Equal(t, 1234.5, values[1])
		assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Equal(values[2].(time.Time)))
		assert.Equal(t, true, values[3])
	})

	t.Run("Empty Cells", func(t *testing.T) {
		s, _ := open(t, r, false)
		values, err := s.ReadRow(ctx, []string{"1", "2.00", "", ""})
		require.NoError(t, err)
		assert.Nil(t, values[2], "optional boxed reads null")
		assert.Equal(t, false, values[3], "optional primitive reads zero")
	})

	t.Run("Collects Every Column", func(t *testing.T) {
		s, hook := open(t, r, false)
		values, err := s.ReadRow(ctx, []string{"x", "", "2024-03-01", "maybe"})
		require.Error(t, err)

		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 1, rowErr.Line)
		require.Len(t, rowErr.Errors, 3)
		assert.Equal(t, cellz.StageParseNumber, rowErr.Column("id").Stage())
		assert.Equal(t, cellz.StageRequired, rowErr.Column("price").Stage())
		assert.Equal(t, cellz.StageParseBoolean, rowErr.Column("express").Stage())
		assert.Nil(t, rowErr.Column("shipped"))
		assert.ErrorIs(t, err, cellz.ErrRequired)
		assert.ErrorIs(t, err, cellz.ErrProcessing)

		v, ok := rowErr.Column("price").Violation()
		require.True(t, ok)
		assert.Equal(t, "price", v.Field)

		assert.NotNil(t, values[2], "accepted cells are kept")

		var cellErr *cellz.Error[cellz.Cell]
		require.ErrorAs(t, rowErr.Column("price"), &cellErr)
		assert.Equal(t, []cellz.Name{"price", "price.input", "required"}, cellErr.Path)

		warnings := 0
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel {
				warnings++
				assert.Equal(t, "orders", e.Data["schema"])
				assert.Equal(t, 1, e.Data["line"])
				assert.Equal(t, "read", e.Data["op"])
			}
		}
		assert.Equal(t, 3, warnings)
		assert.Equal(t, 1.0, s.Metrics().Counter(SessionRowsRejected).Value())
		assert.Equal(t, 3.0, s.Metrics().Counter(SessionCellsRejected).Value())
	})

	t.Run("Constraint", func(t *testing.T) {
		s, _ := open(t, r, false)
		_, err := s.ReadRow(ctx, []string{"1", "-1.00", "", ""})
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, cellz.StageMin, rowErr.Column("price").Stage())
		assert.ErrorIs(t, err, cellz.ErrConstraint)
	})

	t.Run("Unique Across Rows", func(t *testing.T) {
		s, _ := open(t, r, false)
		_, err := s.ReadRow(ctx, []string{"7", "1.00", "", ""})
		require.NoError(t, err)
		_, err = s.ReadRow(ctx, []string{"7", "2.00", "", ""})
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 2, rowErr.Line)
		assert.Equal(t, cellz.StageUnique, rowErr.Column("id").Stage())

		s.Reset()
		assert.Equal(t, 0, s.Line())
		_, err = s.ReadRow(ctx, []string{"7", "1.00", "", ""})
		assert.NoError(t, err)
	})

	t.Run("Sessions Are Independent", func(t *testing.T) {
		a, _ := open(t, r, false)
		b, _ := open(t, r, false)
		_, err := a.ReadRow(ctx, []string{"7", "1.00", "", ""})
		require.NoError(t, err)
		_, err = b.ReadRow(ctx, []string{"7", "1.00", "", ""})
		assert.NoError(t, err)
		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("Column Count", func(t *testing.T) {
		s, _ := open(t, r, false)
		_, err := s.ReadRow(ctx, []string{"1", "2.00"})
		assert.ErrorIs(t, err, ErrColumnCount)
	})

	t.Run("Canceled", func(t *testing.T) {
		s, _ := open(t, r, false)
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.ReadRow(canceled, []string{"1", "2.00", "", ""})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSessionWrite(t *testing.T) {
	ctx := context.Background()
	r := compile(t, ordersYAML)

	t.Run("Formats Cells", func(t *testing.T) {
		s, _ := open(t, r, false)
		record, err := s.WriteRow(ctx, []cellz.Cell{int64(1), 1234.5, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "1,234.50", "2024-03-01", "true"}, record)
		assert.Equal(t, 1.0, s.Metrics().Counter(SessionRowsWritten).Value())
	})

	t.Run("Null Writes Empty", func(t *testing.T) {
		s, _ := open(t, r, false)
		record, err := s.WriteRow(ctx, []cellz.Cell{int64(1), 2.0, nil, false})
		require.NoError(t, err)
		assert.Equal(t, "", record[2])
		assert.Equal(t, "false", record[3])
	})

	t.Run("Validates", func(t *testing.T) {
		s, _ := open(t, r, false)
		_, err := s.WriteRow(ctx, []cellz.Cell{int64(1), -3.0, nil, false})
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, cellz.StageMin, rowErr.Column("price").Stage())
	})

	t.Run("Skip Validation", func(t *testing.T) {
		s, _ := open(t, r, true)
		assert.True(t, s.SkipValidation())
		for i := 0; i < 2; i++ {
			record, err := s.WriteRow(ctx, []cellz.Cell{int64(1), -3.0, nil, false})
			require.NoError(t, err)
			assert.Equal(t, "-3.00", record[1])
		}
		out, ok := s.Chain("price", cellz.Output)
		require.True(t, ok)
		assert.False(t, out.Has(cellz.StageMin))
		in, ok := s.Chain("price", cellz.Input)
		require.True(t, ok)
		assert.True(t, in.Has(cellz.StageMin))
	})

	t.Run("Wrong Type", func(t *testing.T) {
		s, _ := open(t, r, false)
		_, err := s.WriteRow(ctx, []cellz.Cell{"one", 1.0, nil, false})
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.NotNil(t, rowErr.Column("id"))
	})
}

func TestDecodeEncode(t *testing.T) {
	ctx := context.Background()
	r := compile(t, ordersYAML)

	input := "id,price,Shipped On,express\n" +
		"1,\"1,234.50\",2024-03-01,yes\n" +
		"2,oops,,\n" +
		"3,5.00,,no\n"

	s, _ := open(t, r, false)
	var rows [][]cellz.Cell
	var failed []int
	err := Decode(ctx, s, strings.NewReader(input), func(line int, values []cellz.Cell, err error) error {
		if err != nil {
			failed = append(failed, line)
			return nil
		}
		rows = append(rows, values)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, failed)
	require.Len(t, rows, 2)

	w, _ := open(t, r, false)
	var buf bytes.Buffer
	require.NoError(t, Encode(ctx, w, &buf, rows))
	assert.Equal(t,
		"id,price,Shipped On,express\n"+
			"1,\"1,234.50\",2024-03-01,true\n"+
			"3,5.00,,false\n",
		buf.String())

	t.Run("Bad Header Stops", func(t *testing.T) {
		s, _ := open(t, r, false)
		err := Decode(ctx, s, strings.NewReader("a,b,c,d\n1,2.00,,\n"), func(int, []cellz.Cell, error) error { return nil })
		assert.ErrorIs(t, err, ErrHeaderMismatch)
	})
}
