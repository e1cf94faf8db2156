package model

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus classifies how a symbol or chunk fared in a run.
type OutcomeStatus string

const (
	StatusOK      OutcomeStatus = "ok"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// Skip and failure reasons recorded on outcomes.
const (
	ReasonNoData      = "no_data"
	ReasonNoCandles   = "no_candles"
	ReasonEmptySeries = "empty_series"
	ReasonNoPrice     = "no_price"
	ReasonSchema      = "schema_mismatch"
	ReasonFetch       = "fetch_failed"
	ReasonCompute     = "compute_failed"
	ReasonPanic       = "panic"
	ReasonCanceled    = "canceled"
)

// SymbolOutcome is the per-symbol result of one run.
type SymbolOutcome struct {
	Symbol string
	Chunk  int
	Status OutcomeStatus
	Reason string
	Err    error
}

// ChunkOutcome is the per-chunk result of one run.
type ChunkOutcome struct {
	Index    int
	Symbols  int
	Returned int
	Status   OutcomeStatus
	Reason   string
	Err      error
	Elapsed  time.Duration
}

// RunReport aggregates everything a run did.
type RunReport struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Chunks     []ChunkOutcome
	Symbols    []SymbolOutcome
	Upserted   int
	PersistErr error
	RunErr     error
}

// Counts tallies symbol outcomes by status.
type Counts struct {
	OK      int
	Skipped int
	Failed  int
}

// Total returns the number of symbols seen.
func (c Counts) Total() int { return c.OK + c.Skipped + c.Failed }

// Counts returns symbol tallies.
func (r *RunReport) Counts() Counts {
	var c Counts
	for _, s := range r.Symbols {
		switch s.Status {
		case StatusOK:
			c.OK++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// FailedChunks returns chunks that contributed nothing because the fetch failed.
func (r *RunReport) FailedChunks() []ChunkOutcome {
	var out []ChunkOutcome
	for _, c := range r.Chunks {
		if c.Status == StatusFailed {
			out = append(out, c)
		}
	}
	return out
}

// Failures returns symbols whose processing raised.
func (r *RunReport) Failures() []SymbolOutcome {
	var out []SymbolOutcome
	for _, s := range r.Symbols {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
