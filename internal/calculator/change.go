package calculator

import (
	"errors"
	"time"

	"MarketShard/internal/model"
)

// ErrNoPrice means the normalized series has no priced slot.
var ErrNoPrice = errors.New("no price in series")

// Change holds the derived price movement for one symbol.
type Change struct {
	Price          float64
	ReferencePrice float64
	ChangeValue    float64
	ChangePercent  float64
}

// ComputeChange derives the latest price and its change against the previous
// session's close. Without a previous session the first open of the current
// session is the reference.
func ComputeChange(series model.NormalizedSeries, raw []model.RawCandle) (Change, error) {
	last, ok := series.Last()
	if !ok {
		return Change{}, ErrNoPrice
	}
	ref := referencePrice(series, raw)

	c := Change{
		Price:          last.Close.Float64,
		ReferencePrice: ref,
		ChangeValue:    last.Close.Float64 - ref,
	}
	if ref != 0 {
		c.ChangePercent = c.ChangeValue / ref * 100
	}
	return c, nil
}

// Rounded returns c with every field rounded to PriceDecimals.
func (c Change) Rounded() Change {
	return Change{
		Price:          Round(c.Price),
		ReferencePrice: Round(c.ReferencePrice),
		ChangeValue:    Round(c.ChangeValue),
		ChangePercent:  Round(c.ChangePercent),
	}
}

func referencePrice(series model.NormalizedSeries, raw []model.RawCandle) float64 {
	loc := series.Start.Location()
	var (
		prevClose float64
		prevAt    time.Time
		havePrev  bool
		first     model.RawCandle
		firstAt   time.Time
		haveFirst bool
	)
	for _, c := range raw {
		t := localize(c, loc)
		day := midnight(t)
		switch {
		case day.Before(series.SessionDate):
			if c.Close.Valid && (!havePrev || !t.Before(prevAt)) {
				prevClose, prevAt, havePrev = c.Close.Float64, t, true
			}
		case day.Equal(series.SessionDate):
			if !haveFirst || t.Before(firstAt) {
				first, firstAt, haveFirst = c, t, true
			}
		}
	}
	if havePrev {
		return prevClose
	}
	if !haveFirst {
		return 0
	}
	if first.Open.Valid {
		return first.Open.Float64
	}
	return first.Close.ValueOrZero()
}
