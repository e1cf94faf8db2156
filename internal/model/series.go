package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// SeriesPoint is one slot of the session grid.
type SeriesPoint struct {
	Time  time.Time
	Close null.Float
}

// NormalizedSeries is one symbol's session reindexed onto a fixed step.
type NormalizedSeries struct {
	Symbol      string
	SessionDate time.Time // midnight of the session day, market location
	Start       time.Time // session open
	Step        time.Duration
	Points      []SeriesPoint
}

// Len returns the number of grid slots.
func (s NormalizedSeries) Len() int { return len(s.Points) }

// Last returns the last slot holding a price.
func (s NormalizedSeries) Last() (SeriesPoint, bool) {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Close.Valid {
			return s.Points[i], true
		}
	}
	return SeriesPoint{}, false
}
