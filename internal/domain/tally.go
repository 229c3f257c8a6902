package domain

import (
	"encoding/json"
	"time"
)

// UnitCode identifies one electoral unit, e.g. "SP" or "DF".
type UnitCode string

// CatalogSize is the number of electoral units a valid catalog holds.
const CatalogSize = 27

// CandidateTally is one candidate's counted votes in one unit.
type CandidateTally struct {
	Name         string  `json:"name"`
	Votes        int64   `json:"votes"`
	SharePercent float64 `json:"share_percent"`
}

// UnitTally is the normalized view of one unit's result document.
type UnitTally struct {
	Unit           UnitCode         `json:"unit"`
	LastUpdate     string           `json:"last_update"`
	CountedPercent float64          `json:"counted_percent"`
	Candidates     []CandidateTally `json:"candidates"`
}

// Projectable reports whether the unit has counted any votes yet.
func (t UnitTally) Projectable() bool {
	return t.CountedPercent != 0
}

// FetchResult is the outcome of fetching one unit. Document is nil when the
// fetch failed, in which case Err wraps ErrFetchFailure.
type FetchResult struct {
	Unit     UnitCode
	Document json.RawMessage
	Err      error
	Duration time.Duration
}
