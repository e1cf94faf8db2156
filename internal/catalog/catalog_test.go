package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketShard/internal/model"
)

type pagedCatalog struct {
	all   []model.SymbolProfile
	calls []int
	err   error
}

func (p *pagedCatalog) Page(_ context.Context, offset, limit int) ([]model.SymbolProfile, error) {
	p.calls = append(p.calls, offset)
	if p.err != nil && offset > 0 {
		return nil, p.err
	}
	if offset >= len(p.all) {
		return nil, nil
	}
	return p.all[offset:min(offset+limit, len(p.all))], nil
}

func syms(names ...string) []model.SymbolProfile {
	out := make([]model.SymbolProfile, len(names))
	for i, n := range names {
		out[i] = model.SymbolProfile{Symbol: n, Market: "us"}
	}
	return out
}

func TestLoadAll_Pagination(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		pageSize  int
		wantCalls []int
	}{
		{"short last page", 5, 2, []int{0, 2, 4}},
		{"exact multiple needs empty page", 4, 2, []int{0, 2, 4}},
		{"single page", 3, 10, []int{0}},
		{"empty catalog", 0, 10, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := make([]string, tt.n)
			for i := range names {
				names[i] = string(rune('A' + i))
			}
			c := &pagedCatalog{all: syms(names...)}
			got, err := LoadAll(context.Background(), c, tt.pageSize)
			require.NoError(t, err)
			assert.Len(t, got, tt.n)
			assert.Equal(t, tt.wantCalls, c.calls)
		})
	}
}

func TestLoadAll_DropsBlankAndDuplicates(t *testing.T) {
	c := &pagedCatalog{all: []model.SymbolProfile{
		{Symbol: "AAPL", DisplayName: "Apple", Market: "US"},
		{Symbol: "  "},
		{Symbol: "AAPL", DisplayName: "Apple again"},
		{Symbol: " ^NSEI ", Market: "index"},
		{Symbol: "XYZ", Market: "mars"},
	}}
	got, err := LoadAll(context.Background(), c, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Apple", got[0].DisplayName)
	assert.Equal(t, "^NSEI", got[1].Symbol)
	assert.Equal(t, model.MarketIndex, got[1].Market)
	assert.Equal(t, model.MarketDefault, got[2].Market)
}

func TestLoadAll_PageErrorIsFatal(t *testing.T) {
	boom := errors.New("timeout")
	c := &pagedCatalog{all: syms("A", "B", "C"), err: boom}
	got, err := LoadAll(context.Background(), c, 2)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestFileCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`profiles:
  - symbol: AAPL
    name: Apple Inc.
    market: US
  - symbol: RELIANCE.NS
    name: Reliance Industries
    market: IN
  - symbol: ^GSPC
    name: S&P 500 Index
    market: INDEX
`), 0o644))

	c, err := NewFileCatalog(path)
	require.NoError(t, err)
	got, err := LoadAll(context.Background(), c, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, model.SymbolProfile{Symbol: "RELIANCE.NS", DisplayName: "Reliance Industries", Market: model.MarketIndia}, got[1])
}

func TestFileCatalog_Missing(t *testing.T) {
	_, err := NewFileCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestProfileRowRoundTrip(t *testing.T) {
	p := model.SymbolProfile{Symbol: "TCS.NS", DisplayName: "Tata Consultancy Services", Market: model.MarketIndia}
	row := rowFromProfile(p)
	assert.Equal(t, "Tata Consultancy Services", row.CompanyName)
	assert.Equal(t, "stock_profiles", row.TableName())
	assert.Equal(t, p, row.profile())
}
