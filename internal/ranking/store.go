// Package ranking keeps ELO ratings for hosted models and on-chain agents.
package ranking

import (
	"context"

	"chainarena/internal/core"
)

// RatingFunc maps the pre-update ratings of a pair to their new ratings.
type RatingFunc func(left, right float64) (float64, float64)

// Store persists participant records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Count returns the number of participants of kind.
	Count(ctx context.Context, kind core.Kind) (int, error)

	// InsertMissing inserts participants whose (kind, name) does not exist yet.
	// Existing rows are never modified.
	InsertMissing(ctx context.Context, participants []core.Participant) error

	// Get returns a GatewayError with CodeParticipantNotFound for unknown names.
	Get(ctx context.Context, kind core.Kind, name string) (*core.Participant, error)

	// List returns every participant of kind in no particular order.
	List(ctx context.Context, kind core.Kind) ([]core.Participant, error)

	// UpdatePair reads both ratings, applies fn and writes both results as one
	// atomic unit. No reader observes one rating updated without the other.
	UpdatePair(ctx context.Context, kind core.Kind, left, right string, fn RatingFunc) error
}
