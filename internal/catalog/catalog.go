// Package catalog owns the list of electoral units polled every cycle.
//
// The list is fetched from a remote source once, validated, and stored; every
// later read comes from the store and is validated again so that a corrupted
// copy surfaces as ErrInvalidCatalog instead of being silently replaced.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/retry"
	"golang.org/x/sync/singleflight"
)

const seedKey = "catalog"

// Source fetches the unit codes from wherever they are published.
type Source interface {
	FetchCodes(ctx context.Context) ([]domain.UnitCode, error)
}

type Catalog struct {
	store  domain.CatalogStore
	source Source
	policy retry.Policy
	group  singleflight.Group
}

// DefaultPolicy retries the remote fetch a few times before giving up on the
// cycle.
var DefaultPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     10 * time.Second,
}

func New(store domain.CatalogStore, source Source, policy retry.Policy) *Catalog {
	return &Catalog{store: store, source: source, policy: policy}
}

// List returns the validated, sorted unit codes, seeding the store from the
// remote source on first use.
func (c *Catalog) List(ctx context.Context) ([]domain.UnitCode, error) {
	codes, err := c.store.GetCatalog(ctx)
	if err == nil {
		if err := Validate(codes); err != nil {
			return nil, fmt.Errorf("stored catalog: %w", err)
		}
		return codes, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	v, err, _ := c.group.Do(seedKey, func() (any, error) {
		return c.seed(ctx)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.UnitCode)), nil
}

func (c *Catalog) seed(ctx context.Context) ([]domain.UnitCode, error) {
	policy := c.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Catalog fetch failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	codes, err := retry.Do(ctx, policy, retry.Unless(domain.ErrInvalidCatalog), func(ctx context.Context) ([]domain.UnitCode, error) {
		codes, err := c.source.FetchCodes(ctx)
		if err != nil {
			return nil, err
		}
		codes = Normalize(codes)
		if err := Validate(codes); err != nil {
			return nil, err
		}
		return codes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	inserted, err := c.store.SaveCatalogIfAbsent(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to save catalog: %w", err)
	}
	if inserted {
		slog.InfoContext(ctx, "Unit catalog seeded", "units", len(codes))
		return codes, nil
	}

	// Another process seeded first; theirs wins.
	stored, err := c.store.GetCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if err := Validate(stored); err != nil {
		return nil, fmt.Errorf("stored catalog: %w", err)
	}
	return stored, nil
}

// Normalize trims and upper-cases codes and sorts them.
func Normalize(codes []domain.UnitCode) []domain.UnitCode {
	out := make([]domain.UnitCode, 0, len(codes))
	for _, code := range codes {
		out = append(out, domain.UnitCode(strings.ToUpper(strings.TrimSpace(string(code)))))
	}
	slices.Sort(out)
	return out
}

// Validate checks that codes hold exactly CatalogSize distinct two-character
// codes.
func Validate(codes []domain.UnitCode) error {
	if len(codes) != domain.CatalogSize {
		return fmt.Errorf("%w: expected %d units, got %d", domain.ErrInvalidCatalog, domain.CatalogSize, len(codes))
	}

	seen := make(map[domain.UnitCode]struct{}, len(codes))
	for _, code := range codes {
		if len(code) != 2 {
			return fmt.Errorf("%w: invalid unit code %q", domain.ErrInvalidCatalog, code)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: duplicate unit code %q", domain.ErrInvalidCatalog, code)
		}
		seen[code] = struct{}{}
	}
	return nil
}
