package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"MarketShard/internal/model"
)

// DefaultConstituentsURL serves the S&P 500 member list as CSV.
const DefaultConstituentsURL = "https://raw.githubusercontent.com/datasets/s-and-p-500-companies/main/data/constituents.csv"

// FetchConstituents downloads a CSV index membership list with Symbol and
// Security columns and returns it as US profiles. Share classes are written
// the way quote feeds expect them (BRK.B becomes BRK-B).
func FetchConstituents(ctx context.Context, client *http.Client, url string) ([]model.SymbolProfile, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build constituents request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch constituents: status %d", resp.StatusCode)
	}
	return parseConstituents(resp.Body)
}

func parseConstituents(r io.Reader) ([]model.SymbolProfile, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read constituents header: %w", err)
	}
	symCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "Symbol":
			symCol = i
		case "Security", "Name":
			nameCol = i
		}
	}
	if symCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("constituents header %v lacks Symbol and Security columns", header)
	}

	var out []model.SymbolProfile
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read constituents: %w", err)
		}
		if len(rec) <= max(symCol, nameCol) {
			continue
		}
		sym := strings.TrimSpace(rec[symCol])
		if sym == "" {
			continue
		}
		out = append(out, model.SymbolProfile{
			Symbol:      strings.ReplaceAll(sym, ".", "-"),
			DisplayName: strings.TrimSpace(rec[nameCol]),
			Market:      model.MarketUS,
		})
	}
	return out, nil
}

// Merge concatenates profile lists keyed by symbol. A later entry replaces an
// earlier one in place, so hand-curated seeds override downloaded names while
// the first-seen order is kept. One upsert batch must not repeat a key.
func Merge(lists ...[]model.SymbolProfile) []model.SymbolProfile {
	pos := make(map[string]int)
	var out []model.SymbolProfile
	for _, list := range lists {
		for _, p := range list {
			p.Symbol = strings.TrimSpace(p.Symbol)
			if p.Symbol == "" {
				continue
			}
			if i, ok := pos[p.Symbol]; ok {
				out[i] = p
				continue
			}
			pos[p.Symbol] = len(out)
			out = append(out, p)
		}
	}
	return out
}
