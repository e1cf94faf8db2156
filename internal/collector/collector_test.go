package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketShard/internal/model"
)

type recordingSink struct {
	mu        sync.Mutex
	calls     int
	snapshots []model.PriceSnapshot
	charts    map[string]model.ChartPayload
	ctxErr    error
	err       error
	panicMsg  string
}

func (s *recordingSink) Persist(ctx context.Context, snapshots []model.PriceSnapshot, charts map[string]model.ChartPayload) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.snapshots = snapshots
	s.charts = charts
	s.ctxErr = ctx.Err()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return 0, s.err
	}
	return len(snapshots), nil
}

func ny(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2024, 1, 2, hour, minute, 0, 0, loc)
}

func zzzCandles(t *testing.T) []model.RawCandle {
	return []model.RawCandle{
		{Time: ny(t, 9, 30).UTC(), Open: null.FloatFrom(100), Close: null.FloatFrom(101)},
		{Time: ny(t, 9, 45).UTC(), Close: null.FloatFrom(102)},
	}
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func newTestCollector(t *testing.T, src QuoteSource, sink Sink) *Collector {
	now := ny(t, 10, 0)
	return &Collector{
		Source:    src,
		ChunkSize: 2,
		Sink:      sink,
		Now:       func() time.Time { return now },
		Log:       quietLogger(),
	}
}

func profiles(symbols ...string) []model.SymbolProfile {
	out := make([]model.SymbolProfile, len(symbols))
	for i, s := range symbols {
		out[i] = model.SymbolProfile{Symbol: s, DisplayName: s + " Inc", Market: model.MarketUS}
	}
	return out
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 3, []int{}},
		{5, 2, []int{2, 2, 1}},
		{4, 4, []int{4}},
		{3, 0, []int{3}},
	}
	for _, tt := range tests {
		chunks := Chunk(profiles(make([]string, tt.n)...), tt.size)
		got := make([]int, len(chunks))
		for i, c := range chunks {
			got[i] = len(c)
		}
		assert.Equal(t, tt.want, got, "n=%d size=%d", tt.n, tt.size)
	}
}

func TestRun_EndToEndScenario(t *testing.T) {
	src := &StaticSource{Candles: map[string][]model.RawCandle{"ZZZ": zzzCandles(t)}}
	sink := &recordingSink{}
	c := newTestCollector(t, src, sink)

	res, err := c.Run(context.Background(), profiles("DEAD", "ZZZ"))
	require.NoError(t, err)

	require.Len(t, res.Snapshots, 1)
	snap := res.Snapshots[0]
	assert.Equal(t, "ZZZ", snap.Symbol)
	assert.Equal(t, "ZZZ Inc", snap.DisplayName)
	assert.Equal(t, 102.0, snap.Price)
	assert.Equal(t, 100.0, snap.ReferencePrice)
	assert.Equal(t, 2.0, snap.ChangeValue)
	assert.Equal(t, 2.0, snap.ChangePercent)
	assert.True(t, snap.ComputedAt.Equal(ny(t, 10, 0)))

	chart, ok := res.Charts["ZZZ"]
	require.True(t, ok)
	assert.Equal(t, ny(t, 9, 30).Unix(), chart.Start)
	require.Len(t, chart.Prices, 6)
	assert.Equal(t, null.FloatFrom(102), chart.Prices[5])

	counts := res.Report.Counts()
	assert.Equal(t, model.Counts{OK: 1, Skipped: 1}, counts)
	for _, o := range res.Report.Symbols {
		if o.Symbol == "DEAD" {
			assert.Equal(t, model.ReasonNoData, o.Reason)
		}
	}

	assert.Equal(t, 1, sink.calls)
	assert.Len(t, sink.snapshots, 1)
	assert.Equal(t, 1, res.Report.Upserted)
	assert.NoError(t, res.Report.PersistErr)
	assert.NotEqual(t, uuid.Nil, res.Report.RunID)
}

func TestRun_ChunkFailureIsolated(t *testing.T) {
	src := &StaticSource{
		Candles: map[string][]model.RawCandle{"AAA": zzzCandles(t), "CCC": zzzCandles(t)},
		Fail: func(symbols []string) error {
			if symbols[0] == "BBB" {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	c := newTestCollector(t, src, &recordingSink{})
	c.ChunkSize = 1

	res, err := c.Run(context.Background(), profiles("AAA", "BBB", "CCC"))
	require.NoError(t, err)

	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, "AAA", res.Snapshots[0].Symbol)
	assert.Equal(t, "CCC", res.Snapshots[1].Symbol)

	failed := res.Report.FailedChunks()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)
	assert.Equal(t, model.ReasonFetch, failed[0].Reason)
	assert.Len(t, src.Requests(), 3)
}

func TestRun_SoftSkipsNeverFail(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	src := &StaticSource{Candles: map[string][]model.RawCandle{
		"EMPTY": {},
		"NOPX":  {{Time: ny(t, 9, 30), Open: null.FloatFrom(5)}},
		"LATE":  {{Time: time.Date(2024, 1, 3, 9, 0, 0, 0, tokyo), Close: null.FloatFrom(5)}},
	}}
	c := newTestCollector(t, src, &recordingSink{})
	c.Now = func() time.Time { return ny(t, 9, 45) }

	// Tokyo has not opened its next session yet.
	late := model.SymbolProfile{Symbol: "LATE", Market: model.MarketJapan}
	res, err := c.Run(context.Background(), append(profiles("EMPTY", "NOPX"), late))
	require.NoError(t, err)

	reasons := map[string]string{}
	for _, o := range res.Report.Symbols {
		assert.Equal(t, model.StatusSkipped, o.Status, o.Symbol)
		reasons[o.Symbol] = o.Reason
	}
	assert.Equal(t, model.ReasonNoCandles, reasons["EMPTY"])
	assert.Equal(t, model.ReasonNoPrice, reasons["NOPX"])
	assert.Equal(t, model.ReasonEmptySeries, reasons["LATE"])
	assert.Empty(t, res.Report.Failures())
}

func TestRun_PersistsPartialResultOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &StaticSource{
		Candles: map[string][]model.RawCandle{"AAA": zzzCandles(t), "BBB": zzzCandles(t)},
		Fail: func([]string) error {
			cancel()
			return nil
		},
	}
	sink := &recordingSink{}
	c := newTestCollector(t, src, sink)
	c.ChunkSize = 1
	c.ChunkDelay = time.Hour

	res, err := c.Run(ctx, profiles("AAA", "BBB"))
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, sink.calls)
	assert.NoError(t, sink.ctxErr, "persistence must not see the canceled context")
	require.Len(t, sink.snapshots, 1)
	assert.Equal(t, "AAA", sink.snapshots[0].Symbol)

	require.Len(t, res.Report.Chunks, 2)
	assert.Equal(t, model.ReasonCanceled, res.Report.Chunks[1].Reason)
	assert.ErrorIs(t, res.Report.RunErr, context.Canceled)
}

func TestRun_SinkPanicRecovered(t *testing.T) {
	src := &StaticSource{Candles: map[string][]model.RawCandle{"ZZZ": zzzCandles(t)}}
	sink := &recordingSink{panicMsg: "disk gone"}
	c := newTestCollector(t, src, sink)

	res, err := c.Run(context.Background(), profiles("ZZZ"))
	require.Error(t, err)
	require.Error(t, res.Report.PersistErr)
	assert.Contains(t, res.Report.PersistErr.Error(), "disk gone")
	assert.Len(t, res.Snapshots, 1)
}

func TestRun_SinkErrorReported(t *testing.T) {
	src := &StaticSource{Candles: map[string][]model.RawCandle{"ZZZ": zzzCandles(t)}}
	boom := errors.New("ledger down")
	c := newTestCollector(t, src, &recordingSink{err: boom})

	res, err := c.Run(context.Background(), profiles("ZZZ"))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, res.Report.PersistErr, boom)
	assert.Equal(t, 0, res.Report.Upserted)
}

func TestRun_ParallelWorkers(t *testing.T) {
	candles := map[string][]model.RawCandle{}
	syms := []string{"A1", "B1", "C1", "D1", "E1", "F1", "G1"}
	for _, s := range syms {
		candles[s] = zzzCandles(t)
	}
	src := &StaticSource{Candles: candles}
	c := newTestCollector(t, src, &recordingSink{})
	c.Workers = 3

	res, err := c.Run(context.Background(), profiles(syms...))
	require.NoError(t, err)
	require.Len(t, res.Snapshots, len(syms))
	for i, s := range syms {
		assert.Equal(t, s, res.Snapshots[i].Symbol)
	}
	require.Len(t, res.Report.Chunks, 4)
	for i, ch := range res.Report.Chunks {
		assert.Equal(t, i, ch.Index)
	}
	assert.Len(t, src.Requests(), 4)
}

func TestRun_ChartStepDownsamples(t *testing.T) {
	src := &StaticSource{Candles: map[string][]model.RawCandle{"ZZZ": zzzCandles(t)}}
	c := newTestCollector(t, src, &recordingSink{})
	c.ChartStep = 15 * time.Minute

	res, err := c.Run(context.Background(), profiles("ZZZ"))
	require.NoError(t, err)
	chart := res.Charts["ZZZ"]
	assert.Equal(t, []null.Float{null.FloatFrom(101), null.FloatFrom(102)}, chart.Prices)
}

type panickyOnce struct {
	*StaticSource
	calls atomic.Int32
}

func (p *panickyOnce) FetchCandles(ctx context.Context, symbols []string, w Window) (map[string][]model.RawCandle, error) {
	if p.calls.Add(1) == 1 {
		var m map[string]int
		m["boom"] = 1
	}
	return p.StaticSource.FetchCandles(ctx, symbols, w)
}

func TestRun_SourcePanicFailsOnlyItsChunk(t *testing.T) {
	src := &panickyOnce{StaticSource: &StaticSource{Candles: map[string][]model.RawCandle{
		"AAA": zzzCandles(t), "BBB": zzzCandles(t), "CCC": zzzCandles(t),
	}}}
	sink := &recordingSink{}
	c := newTestCollector(t, src, sink)

	var (
		res *Result
		err error
	)
	require.NotPanics(t, func() {
		res, err = c.Run(context.Background(), profiles("AAA", "BBB", "CCC"))
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, res.Report.Chunks, 2)
	assert.Equal(t, model.StatusFailed, res.Report.Chunks[0].Status)
	assert.Equal(t, model.ReasonPanic, res.Report.Chunks[0].Reason)
	assert.Equal(t, model.StatusOK, res.Report.Chunks[1].Status)

	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, "CCC", res.Snapshots[0].Symbol)
	assert.Equal(t, model.Counts{OK: 1, Skipped: 2}, res.Report.Counts())
	assert.Equal(t, 1, sink.calls)
}

func TestRun_PerSymbolFetchErrors(t *testing.T) {
	src := &StaticSource{
		Candles: map[string][]model.RawCandle{"AAA": zzzCandles(t)},
		Errors: SymbolErrors{
			"RL1": errors.New("yahoo RL1: status 429"),
			"ODD": fmt.Errorf("yahoo ODD: close has 1 values for 2 timestamps: %w", ErrSchema),
		},
	}
	c := newTestCollector(t, src, &recordingSink{})
	c.ChunkSize = 10

	res, err := c.Run(context.Background(), profiles("AAA", "RL1", "ODD", "GONE"))
	require.NoError(t, err)

	bySymbol := map[string]model.SymbolOutcome{}
	for _, o := range res.Report.Symbols {
		bySymbol[o.Symbol] = o
	}
	assert.Equal(t, model.StatusOK, bySymbol["AAA"].Status)
	assert.Equal(t, model.StatusFailed, bySymbol["RL1"].Status)
	assert.Equal(t, model.ReasonFetch, bySymbol["RL1"].Reason)
	assert.Equal(t, model.StatusSkipped, bySymbol["ODD"].Status)
	assert.Equal(t, model.ReasonSchema, bySymbol["ODD"].Reason)
	assert.Equal(t, model.ReasonNoData, bySymbol["GONE"].Reason)
	assert.Empty(t, res.Report.FailedChunks())
	assert.Len(t, res.Report.Failures(), 1)
}

func TestRun_RateLimitedSymbolsAreFailures(t *testing.T) {
	srv := newYahooServer(t, nil)
	src := NewYahooSource("", 2)
	src.BaseURL = srv.URL

	c := newTestCollector(t, src, &recordingSink{})
	c.ChunkSize = 4
	res, err := c.Run(context.Background(), profiles("AAA", "RL1", "RL2", "RL3"))
	require.NoError(t, err)

	assert.Empty(t, res.Report.FailedChunks())
	require.Len(t, res.Snapshots, 1)
	for _, o := range res.Report.Symbols {
		if o.Symbol == "AAA" {
			assert.Equal(t, model.StatusOK, o.Status)
			continue
		}
		assert.Equal(t, model.StatusFailed, o.Status, o.Symbol)
		assert.Equal(t, model.ReasonFetch, o.Reason, o.Symbol)
		assert.ErrorContains(t, o.Err, "status 429")
	}
	assert.Len(t, res.Report.Failures(), 3)
}
