package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"MarketShard/internal/calculator"
	"MarketShard/internal/calendar"
	"MarketShard/internal/model"
)

// DefaultChunkSize keeps one request per chunk below the source's URL limits.
const DefaultChunkSize = 75

// Sink receives whatever a run accumulated, including partial results.
type Sink interface {
	Persist(ctx context.Context, snapshots []model.PriceSnapshot, charts map[string]model.ChartPayload) (int, error)
}

// Collector fetches candles chunk by chunk and turns them into snapshots and
// chart payloads.
type Collector struct {
	Source     QuoteSource
	Step       time.Duration // grid step
	ChartStep  time.Duration // chart resolution, a multiple of Step
	ChunkSize  int
	ChunkDelay time.Duration
	Workers    int
	Window     Window
	Sink       Sink
	Now        func() time.Time
	Log        logrus.FieldLogger
}

// Result accumulates the output of one run. It is safe for concurrent use
// while the run is in flight; after Run returns the fields can be read freely.
type Result struct {
	mu        sync.Mutex
	Snapshots []model.PriceSnapshot
	Charts    map[string]model.ChartPayload
	Report    model.RunReport
}

func newResult(startedAt time.Time) *Result {
	return &Result{
		Charts: make(map[string]model.ChartPayload),
		Report: model.RunReport{RunID: uuid.New(), StartedAt: startedAt},
	}
}

func (r *Result) addChunk(c model.ChunkOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Report.Chunks = append(r.Report.Chunks, c)
}

func (r *Result) addSymbol(o model.SymbolOutcome, snap *model.PriceSnapshot, chart *model.ChartPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Report.Symbols = append(r.Report.Symbols, o)
	if snap != nil {
		r.Snapshots = append(r.Snapshots, *snap)
	}
	if chart != nil {
		r.Charts[o.Symbol] = *chart
	}
}

func (r *Result) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.Snapshots, func(i, j int) bool { return r.Snapshots[i].Symbol < r.Snapshots[j].Symbol })
	sort.SliceStable(r.Report.Chunks, func(i, j int) bool { return r.Report.Chunks[i].Index < r.Report.Chunks[j].Index })
	sort.SliceStable(r.Report.Symbols, func(i, j int) bool { return r.Report.Symbols[i].Chunk < r.Report.Symbols[j].Chunk })
}

// Chunk splits profiles into contiguous chunks of at most size entries.
func Chunk(profiles []model.SymbolProfile, size int) [][]model.SymbolProfile {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]model.SymbolProfile, 0, (len(profiles)+size-1)/size)
	for start := 0; start < len(profiles); start += size {
		end := min(start+size, len(profiles))
		chunks = append(chunks, profiles[start:end])
	}
	return chunks
}

// Run processes every profile and hands the accumulated result to the Sink.
// Persistence runs on every exit path, including cancellation; a canceled
// run stops issuing chunks and persists what it has.
func (c *Collector) Run(ctx context.Context, profiles []model.SymbolProfile) (res *Result, err error) {
	now := c.now()
	res = newResult(now)
	log := c.logger().WithField("run_id", res.Report.RunID.String())

	defer func() {
		res.finish()
		n, perr := c.persist(ctx, res)
		res.Report.Upserted = n
		res.Report.PersistErr = perr
		res.Report.RunErr = err
		res.Report.FinishedAt = c.now()
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("persist: %w", perr))
		}
	}()

	chunks := Chunk(profiles, c.ChunkSize)
	log.WithFields(logrus.Fields{
		"symbols": len(profiles),
		"chunks":  len(chunks),
		"source":  c.Source.Name(),
	}).Info("run started")

	if c.Workers <= 1 {
		for i, chunk := range chunks {
			if ctx.Err() != nil {
				for j := i; j < len(chunks); j++ {
					c.cancelChunk(res, j, chunks[j])
				}
				break
			}
			c.runChunk(ctx, log, res, i, chunk, now)
			if i < len(chunks)-1 {
				_ = sleepCtx(ctx, c.ChunkDelay)
			}
		}
		return res, ctx.Err()
	}

	g := new(errgroup.Group)
	g.SetLimit(c.Workers)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			for j := i; j < len(chunks); j++ {
				c.cancelChunk(res, j, chunks[j])
			}
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				c.cancelChunk(res, i, chunk)
				return nil
			}
			c.runChunk(ctx, log, res, i, chunk, now)
			_ = sleepCtx(ctx, c.ChunkDelay)
			return nil
		})
	}
	_ = g.Wait()
	return res, ctx.Err()
}

func (c *Collector) runChunk(ctx context.Context, log logrus.FieldLogger, res *Result, index int, chunk []model.SymbolProfile, now time.Time) {
	start := time.Now()
	symbols := make([]string, len(chunk))
	for i, p := range chunk {
		symbols[i] = p.Symbol
	}

	table, err := c.fetch(ctx, symbols)
	var symbolErrs SymbolErrors
	if errors.As(err, &symbolErrs) {
		err = nil
	}
	outcome := model.ChunkOutcome{Index: index, Symbols: len(chunk), Status: model.StatusOK}
	if err != nil {
		outcome.Status = model.StatusFailed
		outcome.Reason = model.ReasonFetch
		if errors.Is(err, errSourcePanic) {
			outcome.Reason = model.ReasonPanic
		}
		outcome.Err = err
		outcome.Elapsed = time.Since(start)
		res.addChunk(outcome)
		for _, p := range chunk {
			res.addSymbol(model.SymbolOutcome{
				Symbol: p.Symbol, Chunk: index, Status: model.StatusSkipped, Reason: outcome.Reason, Err: err,
			}, nil, nil)
		}
		return
	}
	outcome.Returned = len(table)

	for _, p := range chunk {
		var o model.SymbolOutcome
		var snap *model.PriceSnapshot
		var chart *model.ChartPayload
		if serr, ok := symbolErrs[p.Symbol]; ok {
			o = fetchOutcome(p.Symbol, serr)
		} else {
			o, snap, chart = c.processSymbol(p, table[p.Symbol], now)
		}
		o.Chunk = index
		res.addSymbol(o, snap, chart)
	}
	outcome.Elapsed = time.Since(start)
	res.addChunk(outcome)

	log.WithFields(logrus.Fields{
		"chunk":    index,
		"symbols":  len(chunk),
		"returned": outcome.Returned,
		"elapsed":  outcome.Elapsed.Round(time.Millisecond).String(),
	}).Debug("chunk processed")
}

// fetch calls the source and turns a panic into a chunk error.
func (c *Collector) fetch(ctx context.Context, symbols []string) (table map[string][]model.RawCandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("%w: %v", errSourcePanic, r)
		}
	}()
	return c.Source.FetchCandles(ctx, symbols, c.Window)
}

// fetchOutcome classifies a per-symbol fetch error. A table that failed its
// schema is a soft skip; anything else means the symbol could not be fetched.
func fetchOutcome(symbol string, err error) model.SymbolOutcome {
	o := model.SymbolOutcome{Symbol: symbol, Err: err}
	if errors.Is(err, ErrSchema) {
		o.Status, o.Reason = model.StatusSkipped, model.ReasonSchema
	} else {
		o.Status, o.Reason = model.StatusFailed, model.ReasonFetch
	}
	return o
}

func (c *Collector) processSymbol(p model.SymbolProfile, raw []model.RawCandle, now time.Time) (o model.SymbolOutcome, snap *model.PriceSnapshot, chart *model.ChartPayload) {
	o = model.SymbolOutcome{Symbol: p.Symbol, Status: model.StatusOK}
	defer func() {
		if r := recover(); r != nil {
			o = model.SymbolOutcome{
				Symbol: p.Symbol,
				Status: model.StatusFailed,
				Reason: model.ReasonPanic,
				Err:    fmt.Errorf("panic: %v", r),
			}
			snap, chart = nil, nil
		}
	}()

	if raw == nil {
		o.Status, o.Reason = model.StatusSkipped, model.ReasonNoData
		return o, nil, nil
	}

	cfg := calendar.ResolveTag(p.Market)
	series, err := calculator.Normalize(p.Symbol, raw, cfg, c.step(), now)
	if err == nil {
		var ch calculator.Change
		ch, err = calculator.ComputeChange(series, raw)
		if err == nil {
			ch = ch.Rounded()
			snap = &model.PriceSnapshot{
				Symbol:         p.Symbol,
				DisplayName:    p.DisplayName,
				MarketTag:      p.Market,
				Price:          ch.Price,
				ReferencePrice: ch.ReferencePrice,
				ChangeValue:    ch.ChangeValue,
				ChangePercent:  ch.ChangePercent,
				ComputedAt:     now,
			}
			payload := calculator.ChartPayload(calculator.Downsample(series, c.chartFactor()))
			return o, snap, &payload
		}
	}

	o.Err = err
	switch {
	case errors.Is(err, calculator.ErrNoCandles):
		o.Status, o.Reason = model.StatusSkipped, model.ReasonNoCandles
	case errors.Is(err, calculator.ErrEmptySeries):
		o.Status, o.Reason = model.StatusSkipped, model.ReasonEmptySeries
	case errors.Is(err, calculator.ErrNoPrice):
		o.Status, o.Reason = model.StatusSkipped, model.ReasonNoPrice
	default:
		o.Status, o.Reason = model.StatusFailed, model.ReasonCompute
	}
	return o, nil, nil
}

func (c *Collector) cancelChunk(res *Result, index int, chunk []model.SymbolProfile) {
	res.addChunk(model.ChunkOutcome{Index: index, Symbols: len(chunk), Status: model.StatusSkipped, Reason: model.ReasonCanceled})
	for _, p := range chunk {
		res.addSymbol(model.SymbolOutcome{
			Symbol: p.Symbol, Chunk: index, Status: model.StatusSkipped, Reason: model.ReasonCanceled,
		}, nil, nil)
	}
}

func (c *Collector) persist(ctx context.Context, res *Result) (n int, err error) {
	if c.Sink == nil {
		return 0, nil
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Sink.Persist(context.WithoutCancel(ctx), res.Snapshots, res.Charts)
}

func (c *Collector) step() time.Duration {
	if c.Step <= 0 {
		return calculator.DefaultStep
	}
	return c.Step
}

func (c *Collector) chartFactor() int {
	step := c.step()
	if c.ChartStep <= step {
		return 1
	}
	return int(c.ChartStep / step)
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Collector) logger() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log.WithField("component", "collector")
	}
	return logrus.StandardLogger().WithField("component", "collector")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
