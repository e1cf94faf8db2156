package calculator

import (
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"MarketShard/internal/model"
)

// PriceDecimals is the precision of every published price figure.
const PriceDecimals = 2

// Round rounds half away from zero to PriceDecimals places.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(PriceDecimals).InexactFloat64()
}

// ChartPrices returns the rounded closes of s; unpriced slots stay null.
func ChartPrices(s model.NormalizedSeries) []null.Float {
	out := make([]null.Float, len(s.Points))
	for i, p := range s.Points {
		if p.Close.Valid {
			out[i] = null.FloatFrom(Round(p.Close.Float64))
		}
	}
	return out
}

// ChartPayload builds the shard entry for s.
func ChartPayload(s model.NormalizedSeries) model.ChartPayload {
	return model.ChartPayload{
		Start:  s.Start.Unix(),
		Prices: ChartPrices(s),
	}
}
