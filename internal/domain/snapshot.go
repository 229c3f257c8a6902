package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UnitResult is one fetched unit as stored in a snapshot: the raw document
// exactly as the feed returned it plus its extracted tally.
type UnitResult struct {
	Unit     UnitCode        `json:"unit"`
	Document json.RawMessage `json:"document"`
	Tally    UnitTally       `json:"tally"`
}

// ImportSnapshot is the result of one poll cycle. Units that failed to fetch
// or extract are absent. Snapshots are never modified after creation.
type ImportSnapshot struct {
	ID          uuid.UUID
	RequestedAt time.Time
	Units       []UnitResult
}

// Tallies returns the extracted tallies in snapshot order.
func (s ImportSnapshot) Tallies() []UnitTally {
	tallies := make([]UnitTally, 0, len(s.Units))
	for _, u := range s.Units {
		tallies = append(tallies, u.Tally)
	}
	return tallies
}

// UnitCodes returns the codes of the units present in the snapshot.
func (s ImportSnapshot) UnitCodes() []UnitCode {
	codes := make([]UnitCode, 0, len(s.Units))
	for _, u := range s.Units {
		codes = append(codes, u.Unit)
	}
	return codes
}

// SnapshotStore is the only durable state of the system. All writes are
// single-row inserts and safe to interleave.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot ImportSnapshot) (uuid.UUID, error)
	LatestSnapshot(ctx context.Context) (*ImportSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]ImportSnapshot, error)

	SavePrediction(ctx context.Context, prediction Prediction) (uuid.UUID, error)
	LatestPrediction(ctx context.Context) (*Prediction, error)
	ListPredictions(ctx context.Context, limit int) ([]Prediction, error)

	CatalogStore
}

// CatalogStore persists the singleton unit catalog.
type CatalogStore interface {
	// SaveCatalogIfAbsent stores codes unless a catalog already exists and
	// reports whether it inserted.
	SaveCatalogIfAbsent(ctx context.Context, codes []UnitCode) (bool, error)
	// GetCatalog returns ErrNotFound when no catalog has been stored.
	GetCatalog(ctx context.Context) ([]UnitCode, error)
}
