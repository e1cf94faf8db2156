package calculator

import (
	"errors"
	"fmt"
	"time"

	"github.com/guregu/null/v6"

	"MarketShard/internal/calendar"
	"MarketShard/internal/model"
)

// DefaultStep is the canonical grid spacing.
const DefaultStep = 5 * time.Minute

var (
	// ErrNoCandles means the source returned nothing for the symbol.
	ErrNoCandles = errors.New("no raw candles")
	// ErrEmptySeries means the session has not produced a grid slot before now.
	ErrEmptySeries = errors.New("series empty after truncation")
)

// Normalize reindexes one symbol's raw candles onto the fixed-step grid of its
// most recent session, fills gaps and drops slots that have not started yet.
func Normalize(symbol string, raw []model.RawCandle, cfg calendar.MarketConfig, step time.Duration, now time.Time) (model.NormalizedSeries, error) {
	if len(raw) == 0 {
		return model.NormalizedSeries{}, ErrNoCandles
	}
	if step <= 0 {
		return model.NormalizedSeries{}, fmt.Errorf("step must be positive, got %s", step)
	}
	loc := cfg.Location

	local := make([]time.Time, len(raw))
	latest := 0
	for i, c := range raw {
		local[i] = localize(c, loc)
		if local[i].After(local[latest]) {
			latest = i
		}
	}

	sessionDate := midnight(local[latest])
	open, close := cfg.SessionBounds(sessionDate)
	if close.Before(open) {
		return model.NormalizedSeries{}, fmt.Errorf("session close %s before open %s", cfg.Close, cfg.Open)
	}

	slots := int(close.Sub(open)/step) + 1
	points := make([]model.SeriesPoint, slots)
	for i := range points {
		points[i].Time = open.Add(time.Duration(i) * step)
	}

	// Last close in each slot wins; walk candles in time order.
	filled := make([]time.Time, slots)
	for i, c := range raw {
		t := local[i]
		if !c.Close.Valid || t.Before(open) || !t.Before(close.Add(step)) {
			continue
		}
		idx := int(t.Sub(open) / step)
		if idx >= slots {
			continue
		}
		if points[idx].Close.Valid && t.Before(filled[idx]) {
			continue
		}
		points[idx].Close = c.Close
		filled[idx] = t
	}

	forwardFill(points)
	backFill(points)

	nowLocal := now.In(loc)
	keep := 0
	for keep < len(points) && points[keep].Time.Before(nowLocal) {
		keep++
	}
	points = points[:keep]
	if len(points) == 0 {
		return model.NormalizedSeries{}, ErrEmptySeries
	}

	return model.NormalizedSeries{
		Symbol:      symbol,
		SessionDate: sessionDate,
		Start:       open,
		Step:        step,
		Points:      points,
	}, nil
}

// Downsample keeps every n-th point starting at the session open so the
// result stays evenly spaced.
func Downsample(s model.NormalizedSeries, n int) model.NormalizedSeries {
	if n <= 1 || len(s.Points) == 0 {
		return s
	}
	out := s
	out.Step = s.Step * time.Duration(n)
	out.Points = make([]model.SeriesPoint, 0, len(s.Points)/n+1)
	for i := 0; i < len(s.Points); i += n {
		out.Points = append(out.Points, s.Points[i])
	}
	return out
}

func forwardFill(points []model.SeriesPoint) {
	var last null.Float
	for i := range points {
		if points[i].Close.Valid {
			last = points[i].Close
			continue
		}
		points[i].Close = last
	}
}

func backFill(points []model.SeriesPoint) {
	first := -1
	for i := range points {
		if points[i].Close.Valid {
			first = i
			break
		}
	}
	if first <= 0 {
		return
	}
	for i := 0; i < first; i++ {
		points[i].Close = points[first].Close
	}
}

func localize(c model.RawCandle, loc *time.Location) time.Time {
	if c.Naive {
		y, m, d := c.Time.Date()
		return time.Date(y, m, d, c.Time.Hour(), c.Time.Minute(), c.Time.Second(), c.Time.Nanosecond(), loc)
	}
	return c.Time.In(loc)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
