package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"MarketShard/internal/model"
)

var (
	// ErrSchema marks an upstream table that does not match its expected shape.
	ErrSchema = errors.New("unexpected response schema")

	errSourcePanic = errors.New("quote source panicked")
)

// SymbolErrors is returned by a source together with a usable table when
// some symbols of the chunk could not be fetched. Keys are symbols.
type SymbolErrors map[string]error

func (e SymbolErrors) Error() string {
	symbols := make([]string, 0, len(e))
	for s := range e {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	if len(symbols) > 5 {
		return fmt.Sprintf("%d symbols failed: %s, ...", len(symbols), strings.Join(symbols[:5], ", "))
	}
	return fmt.Sprintf("%d symbols failed: %s", len(symbols), strings.Join(symbols, ", "))
}

// Window is the trailing range requested from a quote source.
type Window struct {
	Period   string // e.g. "5d"; must cover at least one full prior session
	Interval string // e.g. "5m"
}

// Five calendar days of 5-minute bars, so weekends and holidays still leave
// a prior session for the reference price.
const (
	DefaultPeriod   = "5d"
	DefaultInterval = "5m"
)

func (w Window) withDefaults() Window {
	if w.Period == "" {
		w.Period = DefaultPeriod
	}
	if w.Interval == "" {
		w.Interval = DefaultInterval
	}
	return w
}

// QuoteSource returns raw candles per symbol. Symbols without data are
// omitted from the result rather than returned empty. A non-nil error fails
// the whole chunk unless it is a SymbolErrors, in which case the table is
// valid and the listed symbols failed individually.
type QuoteSource interface {
	FetchCandles(ctx context.Context, symbols []string, window Window) (map[string][]model.RawCandle, error)
	Name() string
}
