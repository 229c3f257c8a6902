package projection

import (
	"testing"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tracked = []domain.TrackedCandidate{
	{Key: "lula", Name: "Lula"},
	{Key: "bolsonaro", Name: "Jair Bolsonaro"},
}

func unit(code string, counted float64, cands ...domain.CandidateTally) domain.UnitTally {
	return domain.UnitTally{Unit: domain.UnitCode(code), CountedPercent: counted, Candidates: cands}
}

func cand(name string, votes int64) domain.CandidateTally {
	return domain.CandidateTally{Name: name, Votes: votes}
}

func TestProjectVotes(t *testing.T) {
	assert.Equal(t, int64(200), ProjectVotes(100, 50))
	assert.Equal(t, int64(200), ProjectVotes(200, 100))
	assert.Equal(t, int64(0), ProjectVotes(0, 12.5))
	// 1 * 100 / 40 = 2.5 rounds away from zero
	assert.Equal(t, int64(3), ProjectVotes(1, 40))
	// 1 * 100 / 66.66... just under 1.5
	assert.Equal(t, int64(1), ProjectVotes(1, 100.0/1.5+0.01))
}

func TestProject_SumsAcrossUnits(t *testing.T) {
	e := NewEngine([]domain.TrackedCandidate{{Key: "a", Name: "A"}, {Key: "b", Name: "B"}})

	shares, standings, err := e.Project([]domain.UnitTally{
		unit("AC", 50, cand("A", 100)),
		unit("AL", 100, cand("A", 200), cand("B", 400)),
	})
	require.NoError(t, err)

	require.Len(t, standings, 2)
	assert.Equal(t, domain.Standing{Name: "A", ProjectedVotes: 400, Share: 0.5}, standings[0])
	assert.Equal(t, domain.Standing{Name: "B", ProjectedVotes: 400, Share: 0.5}, standings[1])
	assert.InDelta(t, 0.5, shares["a"], 1e-12)
	assert.InDelta(t, 0.5, shares["b"], 1e-12)
}

func TestProject_SharesSumToOne(t *testing.T) {
	e := NewEngine(tracked)

	_, standings, err := e.Project([]domain.UnitTally{
		unit("SP", 97.3, cand("Lula", 11519882), cand("Jair Bolsonaro", 14216587), cand("Simone Tebet", 1000)),
		unit("BA", 88.1, cand("Lula", 6097815), cand("Jair Bolsonaro", 2186000)),
		unit("RR", 12.7, cand("Lula", 3), cand("Jair Bolsonaro", 7), cand("Ciro Gomes", 1)),
	})
	require.NoError(t, err)

	var sum float64
	for _, s := range standings {
		assert.GreaterOrEqual(t, s.Share, 0.0)
		assert.LessOrEqual(t, s.Share, 1.0)
		sum += s.Share
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestProject_OrderingAndTieBreak(t *testing.T) {
	e := NewEngine(tracked)

	_, standings, err := e.Project([]domain.UnitTally{
		unit("DF", 100, cand("Lula", 10), cand("Jair Bolsonaro", 30), cand("Ciro Gomes", 10), cand("Simone Tebet", 20)),
	})
	require.NoError(t, err)

	names := make([]string, len(standings))
	for i, s := range standings {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Jair Bolsonaro", "Simone Tebet", "Ciro Gomes", "Lula"}, names)
}

func TestProject_TrackedShares(t *testing.T) {
	e := NewEngine(tracked)

	shares, _, err := e.Project([]domain.UnitTally{
		unit("SP", 50, cand("Lula", 300), cand("Jair Bolsonaro", 100)),
	})
	require.NoError(t, err)
	assert.Len(t, shares, 2)
	assert.InDelta(t, 0.75, shares["lula"], 1e-12)
	assert.InDelta(t, 0.25, shares["bolsonaro"], 1e-12)
}

func TestProject_Skipped(t *testing.T) {
	e := NewEngine(tracked)

	tests := []struct {
		name    string
		tallies []domain.UnitTally
	}{
		{"no tallies", nil},
		{"zero counted percent", []domain.UnitTally{
			unit("SP", 50, cand("Lula", 1), cand("Jair Bolsonaro", 1)),
			unit("AC", 0, cand("Lula", 0), cand("Jair Bolsonaro", 0)),
		}},
		{"zero total", []domain.UnitTally{unit("SP", 10, cand("Lula", 0), cand("Jair Bolsonaro", 0))}},
		{"no candidates", []domain.UnitTally{unit("SP", 10)}},
		{"tracked candidate missing", []domain.UnitTally{unit("SP", 10, cand("Lula", 5), cand("Ciro Gomes", 5))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, standings, err := e.Project(tt.tallies)
			assert.ErrorIs(t, err, domain.ErrProjectionSkipped)
			assert.Nil(t, shares)
			assert.Nil(t, standings)
		})
	}
}
