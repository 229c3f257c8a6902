package domain

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is the projected share of each tracked candidate, keyed by the
// candidate's short key (e.g. "lula").
type Prediction struct {
	ID         uuid.UUID
	SnapshotID uuid.UUID
	Shares     map[string]float64
	ComputedAt time.Time
}

// Standing is one candidate's row in an aggregated projection.
type Standing struct {
	Name           string
	ProjectedVotes int64
	Share          float64
}

// TrackedCandidate maps a candidate's display name in the feed to the key
// used in predictions.
type TrackedCandidate struct {
	Key  string `toml:"key"`
	Name string `toml:"name"`
}
