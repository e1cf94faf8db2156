// Package catalog lists the instruments a run covers.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"MarketShard/internal/model"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 1000

// Catalog serves symbol profiles in stable order, one page at a time.
type Catalog interface {
	Page(ctx context.Context, offset, limit int) ([]model.SymbolProfile, error)
}

// LoadAll pages through c until an empty or short page. Blank symbols are
// dropped and duplicates keep their first occurrence. Any page error fails
// the whole load.
func LoadAll(ctx context.Context, c Catalog, pageSize int) ([]model.SymbolProfile, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	seen := make(map[string]struct{})
	var out []model.SymbolProfile
	for offset := 0; ; offset += pageSize {
		page, err := c.Page(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("load catalog page at offset %d: %w", offset, err)
		}
		for _, p := range page {
			p.Symbol = strings.TrimSpace(p.Symbol)
			if p.Symbol == "" {
				continue
			}
			if _, dup := seen[p.Symbol]; dup {
				continue
			}
			seen[p.Symbol] = struct{}{}
			p.Market = model.ParseMarketTag(string(p.Market))
			out = append(out, p)
		}
		if len(page) < pageSize {
			return out, nil
		}
	}
}
