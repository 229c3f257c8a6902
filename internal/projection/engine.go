// Package projection extrapolates partial counts into a national result.
package projection

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/gbilton/elections-2022/internal/domain"
)

// Engine projects tallies for a fixed set of tracked candidates. It is pure
// and safe for concurrent use.
type Engine struct {
	tracked []domain.TrackedCandidate
}

func NewEngine(tracked []domain.TrackedCandidate) *Engine {
	return &Engine{tracked: slices.Clone(tracked)}
}

// Project scales each candidate's votes in each unit to 100% counted, sums by
// candidate name and returns the tracked candidates' shares keyed by their
// key, together with the full ordered standings.
//
// It returns domain.ErrProjectionSkipped when any unit has counted nothing,
// when there is nothing to project, or when a tracked candidate is absent.
func (e *Engine) Project(tallies []domain.UnitTally) (map[string]float64, []domain.Standing, error) {
	if len(tallies) == 0 {
		return nil, nil, fmt.Errorf("%w: no tallies", domain.ErrProjectionSkipped)
	}

	totals := make(map[string]int64)
	for _, t := range tallies {
		if !t.Projectable() {
			return nil, nil, fmt.Errorf("%w: unit %s has counted 0%%", domain.ErrProjectionSkipped, t.Unit)
		}
		for _, c := range t.Candidates {
			totals[c.Name] += ProjectVotes(c.Votes, t.CountedPercent)
		}
	}

	var total int64
	standings := make([]domain.Standing, 0, len(totals))
	for name, votes := range totals {
		standings = append(standings, domain.Standing{Name: name, ProjectedVotes: votes})
		total += votes
	}
	if total == 0 {
		return nil, nil, fmt.Errorf("%w: projected total is zero", domain.ErrProjectionSkipped)
	}

	slices.SortFunc(standings, func(a, b domain.Standing) int {
		if c := cmp.Compare(b.ProjectedVotes, a.ProjectedVotes); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	for i := range standings {
		standings[i].Share = float64(standings[i].ProjectedVotes) / float64(total)
	}

	shares := make(map[string]float64, len(e.tracked))
	for _, tc := range e.tracked {
		votes, ok := totals[tc.Name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: candidate %q not in results", domain.ErrProjectionSkipped, tc.Name)
		}
		shares[tc.Key] = float64(votes) / float64(total)
	}

	return shares, standings, nil
}

// ProjectVotes scales votes counted at countedPercent to a full count,
// rounding half away from zero.
func ProjectVotes(votes int64, countedPercent float64) int64 {
	return int64(math.Round(float64(votes) * 100 / countedPercent))
}
