package ranking

import (
	"math"

	"chainarena/internal/core"
)

// K is the ELO adjustment factor.
const K = 32.0

// Expected returns the probability that a participant rated r beats one rated rOpp.
func Expected(r, rOpp float64) float64 {
	return 1 / (1 + math.Pow(10, (rOpp-r)/400))
}

// Update returns the new ratings for a left/right pair. Both results are
// computed from the ratings passed in, never from each other.
func Update(left, right float64, outcome core.Outcome) (float64, float64) {
	var actualLeft float64
	switch outcome {
	case core.OutcomeLeftWins:
		actualLeft = 1
	case core.OutcomeRightWins:
		actualLeft = 0
	default:
		actualLeft = 0.5
	}

	newLeft := left + K*(actualLeft-Expected(left, right))
	newRight := right + K*((1-actualLeft)-Expected(right, left))
	return newLeft, newRight
}
