package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellidoc/internal/models"
)

func TestScoreLiability(t *testing.T) {
	// floor(5/14*10) = 3
	assert.Equal(t, 3, Default().Score([]string{"liability"}))
}

func TestScoreFloorsAtOne(t *testing.T) {
	s := Default()
	assert.Equal(t, 1, s.Score(nil))
	assert.Equal(t, 1, s.Score([]string{"warranty"}))
}

func TestScoreTreatsInputAsSet(t *testing.T) {
	s := Default()
	assert.Equal(t, s.Score([]string{"liability"}), s.Score([]string{"liability", "liability", "liability"}))
}

func TestScoreAllMissing(t *testing.T) {
	s := Default()
	assert.Equal(t, 10, s.Score([]string{"termination", "liability", "confidentiality", "jurisdiction"}))
	assert.Equal(t, 10, s.Score([]string{"termination", "liability", "confidentiality", "jurisdiction", "fees", "ip"}))
}

func TestScoreBoundsOverAllSubsets(t *testing.T) {
	universe := []string{"termination", "liability", "confidentiality", "jurisdiction", "fees", "scope_of_work"}
	s := Default()
	for mask := 0; mask < 1<<len(universe); mask++ {
		var missing []string
		for i, name := range universe {
			if mask&(1<<i) != 0 {
				missing = append(missing, name)
			}
		}
		got := s.Score(missing)
		assert.GreaterOrEqual(t, got, 1, missing)
		assert.LessOrEqual(t, got, 10, missing)
	}
}

func TestScoreMonotonic(t *testing.T) {
	s := Default()
	prev := 0
	acc := []string{}
	for _, name := range []string{"jurisdiction", "termination", "confidentiality", "liability"} {
		acc = append(acc, name)
		got := s.Score(acc)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = New(map[string]int{"a": 0, "b": -1})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	weights := map[string]int{"fees": 2}
	s, err := New(weights)
	require.NoError(t, err)
	weights["fees"] = 100
	assert.Equal(t, 10, s.Score([]string{"fees"}))
	assert.Equal(t, 5, s.Score([]string{"ip"}))
}

func TestAssess(t *testing.T) {
	a := Default().Assess([]string{"liability", "fees", "liability"})
	assert.Equal(t, 4, a.Score)
	assert.Equal(t, []string{"fees", "liability"}, a.Missing)
	assert.Equal(t, "Missing fees (1), liability (5); weight 6 of 14 gives 4/10.", a.Rationale)

	none := Default().Assess(nil)
	assert.Equal(t, 1, none.Score)
	assert.Empty(t, none.Missing)
}
