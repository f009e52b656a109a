package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"

	"chainarena/internal/core"
	"chainarena/internal/observability"
)

// Engine applies votes and serves leaderboards on top of a Store.
type Engine struct {
	store Store
	intN  func(n int) int
}

// NewEngine creates an engine over store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, intN: rand.IntN}
}

// Seed inserts each kind's catalog entries only when that kind has no rows yet.
func (e *Engine) Seed(ctx context.Context, catalog *Catalog) error {
	for _, kind := range []core.Kind{core.KindModel, core.KindAgent} {
		n, err := e.store.Count(ctx, kind)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Debug("participant catalog already seeded", "kind", kind, "count", n)
			continue
		}

		participants := catalog.Participants(kind)
		if err := e.store.InsertMissing(ctx, participants); err != nil {
			return fmt.Errorf("failed to seed %s catalog: %w", kind, err)
		}
		slog.Info("seeded participant catalog", "kind", kind, "count", len(participants))
	}
	return nil
}

// Get implements core.ParticipantLookup.
func (e *Engine) Get(ctx context.Context, kind core.Kind, name string) (*core.Participant, error) {
	return e.store.Get(ctx, kind, name)
}

// ApplyOutcome updates the ratings of left and right from a single vote.
func (e *Engine) ApplyOutcome(ctx context.Context, kind core.Kind, left, right string, outcome core.Outcome) error {
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if left == "" || right == "" {
		return core.NewValidationError("both participants are required", nil)
	}
	if left == right {
		return core.NewValidationError("a participant cannot be voted against itself", nil)
	}

	err := e.store.UpdatePair(ctx, kind, left, right, func(rl, rr float64) (float64, float64) {
		return Update(rl, rr, outcome)
	})
	observability.Votes.WithLabelValues(string(kind), voteLabel(outcome, err)).Inc()
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "vote applied", "kind", kind, "left", left, "right", right, "outcome", outcome)
	return nil
}

func voteLabel(outcome core.Outcome, err error) string {
	if err != nil {
		return "error"
	}
	return outcome.String()
}

// Leaderboard returns kind's participants by descending rating, ties broken by name.
func (e *Engine) Leaderboard(ctx context.Context, kind core.Kind) ([]core.LeaderboardEntry, error) {
	participants, err := e.store.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Rating != participants[j].Rating {
			return participants[i].Rating > participants[j].Rating
		}
		return participants[i].Name < participants[j].Name
	})

	entries := make([]core.LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = core.LeaderboardEntry{
			Rank:  i + 1,
			Name:  p.Name,
			Score: p.Rating,
			Price: p.Price,
		}
		if p.Rating > 0 {
			entries[i].PricePerScore = p.Price / p.Rating
		}
	}
	return entries, nil
}

// RandomPair picks two distinct participants of kind uniformly at random.
func (e *Engine) RandomPair(ctx context.Context, kind core.Kind) (string, string, error) {
	participants, err := e.store.List(ctx, kind)
	if err != nil {
		return "", "", err
	}
	if len(participants) < 2 {
		return "", "", core.NewNotFoundError(fmt.Sprintf("at least two %ss are required, found %d", kind, len(participants)))
	}

	i := e.intN(len(participants))
	j := e.intN(len(participants) - 1)
	if j >= i {
		j++
	}
	return participants[i].Name, participants[j].Name, nil
}
