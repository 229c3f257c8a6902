package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"golang.org/x/sync/errgroup"
)

const unitPlaceholder = "{unit}"

// ResultFetcher downloads one result document per unit. It never retries; a
// unit that fails is reported as such and the caller decides what to do.
type ResultFetcher struct {
	client      *Client
	urlTemplate string
	now         func() time.Time
}

func NewResultFetcher(client *Client, urlTemplate string) *ResultFetcher {
	return &ResultFetcher{client: client, urlTemplate: urlTemplate, now: time.Now}
}

// URL returns the document URL for unit. Codes are lower-cased in the path.
func (f *ResultFetcher) URL(unit domain.UnitCode) string {
	return strings.ReplaceAll(f.urlTemplate, unitPlaceholder, strings.ToLower(string(unit)))
}

// FetchAll fetches every unit concurrently and returns one result per unit,
// in the order given. Failed units carry a nil Document and an error wrapping
// domain.ErrFetchFailure.
func (f *ResultFetcher) FetchAll(ctx context.Context, units []domain.UnitCode) []domain.FetchResult {
	results := make([]domain.FetchResult, len(units))

	var g errgroup.Group
	for i, unit := range units {
		g.Go(func() error {
			results[i] = f.fetch(ctx, unit)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *ResultFetcher) fetch(ctx context.Context, unit domain.UnitCode) domain.FetchResult {
	start := f.now()
	result := domain.FetchResult{Unit: unit}

	body, err := f.client.Get(ctx, f.URL(unit))
	result.Duration = f.now().Sub(start)
	if err != nil {
		result.Err = fmt.Errorf("%w: %s: %w", domain.ErrFetchFailure, unit, err)
		return result
	}
	if !json.Valid(body) {
		result.Err = fmt.Errorf("%w: %s: response is not JSON", domain.ErrFetchFailure, unit)
		return result
	}

	result.Document = json.RawMessage(body)
	return result
}
