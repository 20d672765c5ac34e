package dispatch

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestScoreWeighting(t *testing.T) {
	// A perfect driver standing on the pickup point.
	assert.InDelta(t, 1.0, Score(0, 5, 100), 1e-9)

	// Distance dominates: a closer mediocre driver beats a distant star.
	near := Score(0.5, 4.0, 80)
	far := Score(4.5, 5.0, 100)
	assert.Greater(t, near, far)
}

func TestScoreMonotonicity(t *testing.T) {
	base := Score(2, 4.5, 90)

	assert.Greater(t, Score(1, 4.5, 90), base, "closer scores higher")
	assert.Greater(t, Score(2, 5.0, 90), base, "better rated scores higher")
	assert.Greater(t, Score(2, 4.5, 100), base, "more reliable scores higher")
}

func TestScoreBounds(t *testing.T) {
	assert.LessOrEqual(t, Score(0, 5, 100), 1.0)
	assert.Greater(t, Score(100, 0, 0), 0.0)
}

func TestTiedCandidatesOrderDeterministically(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	c := uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	// Identical scores in every permutation must settle into the same order.
	permutations := [][]uuid.UUID{
		{a, b, c}, {c, b, a}, {b, a, c},
	}
	for _, perm := range permutations {
		scored := make([]ScoredCandidate, 0, len(perm))
		for _, id := range perm {
			scored = append(scored, ScoredCandidate{DriverID: id, DistanceKm: 1, Score: 0.5})
		}
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].Score != scored[j].Score {
				return scored[i].Score > scored[j].Score
			}
			return scored[i].DriverID.String() < scored[j].DriverID.String()
		})

		assert.Equal(t, a, scored[0].DriverID)
		assert.Equal(t, b, scored[1].DriverID)
		assert.Equal(t, c, scored[2].DriverID)
	}
}
