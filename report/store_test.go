package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/cellz/schema"
)

const inventory = `
name: inventory
columns:
  - name: sku
    type: string
    length: 6
  - name: qty
    type: int
    max: "100"
`

func session(t *testing.T, clock clockz.Clock) *schema.Session {
	t.Helper()
	s, err := schema.Parse([]byte(inventory), schema.FormatYAML)
	require.NoError(t, err)
	r, err := schema.Compile(s)
	require.NoError(t, err)

	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.ErrorLevel)
	sess, err := r.NewSession(false, schema.WithLogger(logger), schema.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func store(t *testing.T, opts ...Option) *Store {
	t.Helper()
	st, err := Open(Memory, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	st := store(t, WithClock(clock))
	sess := session(t, clock)
	id := sess.ID().String()

	require.NoError(t, st.Begin(ctx, sess, "stock.csv"))

	_, err := sess.ReadRow(ctx, []string{"AB-123", "7"})
	require.NoError(t, err)

	_, err = sess.ReadRow(ctx, []string{"AB12", "x"})
	rowErr, ok := err.(*schema.RowError)
	require.True(t, ok)
	n, err := st.Record(ctx, id, rowErr)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = sess.ReadRow(ctx, []string{"AB-124", "101"})
	rowErr, ok = err.(*schema.RowError)
	require.True(t, ok)
	_, err = st.Record(ctx, id, rowErr)
	require.NoError(t, err)

	_, err = sess.ReadRow(ctx, []string{"only"})
	rowErr, ok = err.(*schema.RowError)
	require.True(t, ok)
	_, err = st.Record(ctx, id, rowErr)
	require.NoError(t, err)

	n, err = st.Record(ctx, id, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	t.Run("Violations In Line Order", func(t *testing.T) {
		records, err := st.Violations(ctx, Filter{Session: id})
		require.NoError(t, err)
		require.Len(t, records, 4)

		assert.Equal(t, 2, records[0].Line)
		assert.Equal(t, "sku", records[0].Column)
		assert.Equal(t, "length", records[0].Stage)
		assert.Equal(t, "constraint", records[0].Kind)
		assert.Equal(t, "AB12", records[0].Value)

		assert.Equal(t, "qty", records[1].Column)
		assert.Equal(t, "processing", records[1].Kind)
		assert.Equal(t, "parse-number", records[1].Stage)

		assert.Equal(t, 3, records[2].Line)
		assert.Equal(t, "max", records[2].Stage)
		assert.Equal(t, "101", records[2].Value)

		assert.Equal(t, KindRow, records[3].Kind)
		assert.Equal(t, -1, records[3].Position)
		assert.Contains(t, records[3].Message, "wrong number of columns")
		assert.True(t, clock.Now().UTC().Equal(records[3].RecordedAt))
	})

	t.Run("Filters", func(t *testing.T) {
		records, err := st.Violations(ctx, Filter{Column: "qty"})
		require.NoError(t, err)
		assert.Len(t, records, 2)

		records, err = st.Violations(ctx, Filter{Stage: "max"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "qty", records[0].Column)

		records, err = st.Violations(ctx, Filter{Session: id, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Stage Counts", func(t *testing.T) {
		counts, err := st.StageCounts(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"length": 1, "parse-number": 1, "max": 1, KindRow: 1}, counts)
	})

	t.Run("Run Summary", func(t *testing.T) {
		clock.Advance(time.Minute)
		require.NoError(t, st.Finish(ctx, id, 4, 3))
		run, err := st.Run(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "inventory", run.Schema)
		assert.Equal(t, "stock.csv", run.Source)
		assert.Equal(t, 4, run.Rows)
		assert.Equal(t, 3, run.Rejected)
		assert.False(t, run.FinishedAt.IsZero())

		assert.Error(t, st.Finish(ctx, "missing", 0, 0))
		_, err = st.Run(ctx, "missing")
		assert.Error(t, err)
	})
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	st := store(t, WithClock(clock))

	sess := session(t, clock)
	require.NoError(t, st.Begin(ctx, sess, "old.csv"))
	_, err := sess.ReadRow(ctx, []string{"short", "1"})
	rowErr, ok := err.(*schema.RowError)
	require.True(t, ok)
	_, err = st.Record(ctx, sess.ID().String(), rowErr)
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	n, err := st.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := st.Violations(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err, "reopening keeps the schema")
	require.NoError(t, st.Close())
}
