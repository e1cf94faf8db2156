package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketShard/internal/model"
)

func openTestDB(t *testing.T) *SQLiteRecorder {
	t.Helper()
	log, _ := test.NewNullLogger()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "ledger.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSQLiteRecorder_UpsertIsIdempotent(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	rows := []model.LedgerRow{
		{Symbol: "AAPL", Price: 185.1, ChangePercent: 1.2, ChangeValue: 2.2, RecordedAt: at},
		{Symbol: "MSFT", Price: 370, ChangePercent: -0.5, ChangeValue: -1.85, RecordedAt: at},
	}
	n, err := r.UpsertPrices(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// same key, new values
	rows[0].Price = 186
	_, err = r.UpsertPrices(ctx, rows)
	require.NoError(t, err)

	hist, err := r.History(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 186.0, hist[0].Price)
	assert.True(t, hist[0].RecordedAt.Equal(at))
}

func TestSQLiteRecorder_DistinctTimesAppend(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := r.UpsertPrices(ctx, []model.LedgerRow{
			{Symbol: "AAPL", Price: float64(100 + i), RecordedAt: at.Add(time.Duration(i) * time.Hour)},
		})
		require.NoError(t, err)
	}
	hist, err := r.History(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []float64{100, 101, 102}, []float64{hist[0].Price, hist[1].Price, hist[2].Price})
}

func TestSQLiteRecorder_PruneBefore(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := r.UpsertPrices(ctx, []model.LedgerRow{
		{Symbol: "OLD", Price: 1, RecordedAt: now.AddDate(0, 0, -8)},
		{Symbol: "NEW", Price: 2, RecordedAt: now.AddDate(0, 0, -1)},
	})
	require.NoError(t, err)

	n, err := r.PruneBefore(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	old, err := r.History(ctx, "OLD")
	require.NoError(t, err)
	assert.Empty(t, old)
	kept, err := r.History(ctx, "NEW")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestSQLiteRecorder_EmptyUpsert(t *testing.T) {
	r := openTestDB(t)
	n, err := r.UpsertPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	n, err := r.UpsertPrices(context.Background(), make([]model.LedgerRow, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, r.Close())
}
