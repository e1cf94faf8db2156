package collector

import (
	"context"
	"sync"

	"MarketShard/internal/model"
)

// StaticSource serves a fixed candle table. Used for dry runs and tests.
type StaticSource struct {
	Candles map[string][]model.RawCandle
	// Fail, when set, is consulted per request; a non-nil error fails the chunk.
	Fail func(symbols []string) error
	// Errors lists symbols that fail individually; they are left out of the table.
	Errors SymbolErrors

	mu       sync.Mutex
	requests [][]string
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) FetchCandles(ctx context.Context, symbols []string, _ Window) (map[string][]model.RawCandle, error) {
	s.mu.Lock()
	s.requests = append(s.requests, append([]string(nil), symbols...))
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Fail != nil {
		if err := s.Fail(symbols); err != nil {
			return nil, err
		}
	}
	out := make(map[string][]model.RawCandle, len(symbols))
	failed := SymbolErrors{}
	for _, sym := range symbols {
		if err, ok := s.Errors[sym]; ok {
			failed[sym] = err
			continue
		}
		if bars, ok := s.Candles[sym]; ok {
			out[sym] = bars
		}
	}
	if len(failed) > 0 {
		return out, failed
	}
	return out, nil
}

// Requests returns the symbol lists requested so far.
func (s *StaticSource) Requests() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.requests...)
}
