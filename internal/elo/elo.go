// Package elo implements the rating engine: traditional Elo with table
// tennis specific K-factor adjustments, doubles support, and full
// chronological recomputation.
package elo

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Eyedema/ttstats/internal/domain"
)

const (
	// InitialRating is the rating every player starts from.
	InitialRating = 1500.0

	baseK = 32.0

	// Tournament matches matter more; practice and casual are equal.
	tournamentMultiplier = 1.5

	// Higher K for a player's first matches so new ratings converge faster.
	newPlayerMultiplier  = 1.5
	newPlayerMatchWindow = 20
)

// Longer matches are more conclusive.
var bestOfMultipliers = map[int]float64{
	3: 0.9,
	5: 1.0,
	7: 1.1,
}

var (
	ErrInvalidOutcome     = errors.New("invalid match outcome")
	ErrUnknownParticipant = errors.New("unknown participant")
)

// Outcome is a fully confirmed match result. Sides hold one player ID for
// singles or two for doubles. PlayedAt only orders recomputation; it does
// not enter the rating math.
type Outcome struct {
	MatchID   string
	SideA     []string
	SideB     []string
	SideAWins int
	SideBWins int
	BestOf    int
	MatchType domain.MatchType
	PlayedAt  time.Time
}

// Rating is the rating state of one player at a point in time.
type Rating struct {
	Rating       float64
	Peak         float64
	RatedMatches int
}

// NewRating returns the canonical starting state.
func NewRating() Rating {
	return Rating{Rating: InitialRating, Peak: InitialRating}
}

// Change records one player's rating movement for one match.
type Change struct {
	MatchID   string
	PlayerID  string
	OldRating float64
	NewRating float64
	Delta     float64
	KFactor   float64
}

// Batch is the result of applying one outcome: the new rating state of
// every participant plus one history change per participant. History is
// ordered side A first, then side B, in the order the sides list players.
type Batch struct {
	Ratings map[string]Rating
	History []Change
}

// ExpectedScore returns the probability of A winning under the standard
// 400-point logistic Elo formula.
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/400))
}

// KFactor returns the effective K for one participant of the given
// outcome. The new-player boost is applied per participant, not per side,
// so two doubles teammates can carry different K-factors in the same
// match (preserved from the original rating system).
func KFactor(o Outcome, ratedMatches int) float64 {
	k := baseK

	if o.MatchType == domain.MatchTournament {
		k *= tournamentMultiplier
	}

	k *= bestOfMultipliers[o.BestOf]

	if ratedMatches < newPlayerMatchWindow {
		k *= newPlayerMultiplier
	}

	return k
}

func validate(o Outcome) error {
	if len(o.SideA) == 0 || len(o.SideB) == 0 {
		return fmt.Errorf("%w: match %s has an empty side", ErrInvalidOutcome, o.MatchID)
	}
	if len(o.SideA) > 2 || len(o.SideB) > 2 || len(o.SideA) != len(o.SideB) {
		return fmt.Errorf("%w: match %s sides must be 1v1 or 2v2 (got %dv%d)",
			ErrInvalidOutcome, o.MatchID, len(o.SideA), len(o.SideB))
	}

	seen := make(map[string]bool, len(o.SideA)+len(o.SideB))
	for _, id := range o.SideA {
		seen[id] = true
	}
	for _, id := range o.SideB {
		if seen[id] {
			return fmt.Errorf("%w: match %s lists player %s on both sides",
				ErrInvalidOutcome, o.MatchID, id)
		}
	}

	if o.SideAWins < 0 || o.SideBWins < 0 {
		return fmt.Errorf("%w: match %s has negative game wins", ErrInvalidOutcome, o.MatchID)
	}
	if o.SideAWins == o.SideBWins {
		return fmt.Errorf("%w: match %s is tied %d-%d",
			ErrInvalidOutcome, o.MatchID, o.SideAWins, o.SideBWins)
	}

	if _, ok := bestOfMultipliers[o.BestOf]; !ok {
		return fmt.Errorf("%w: match %s has unsupported best-of %d",
			ErrInvalidOutcome, o.MatchID, o.BestOf)
	}

	switch o.MatchType {
	case domain.MatchCasual, domain.MatchPractice, domain.MatchTournament:
	default:
		return fmt.Errorf("%w: match %s has unknown match type %q",
			ErrInvalidOutcome, o.MatchID, o.MatchType)
	}

	return nil
}

// Validate checks the structural preconditions of an outcome without
// applying it.
func Validate(o Outcome) error {
	return validate(o)
}

// sideRating is the effective rating of a side: the single player's rating
// for singles, the arithmetic mean of both players' ratings for doubles.
func sideRating(ids []string, current map[string]Rating) float64 {
	sum := 0.0
	for _, id := range ids {
		sum += current[id].Rating
	}
	return sum / float64(len(ids))
}

// Apply computes the rating movement for one confirmed outcome against the
// given snapshot. It is a pure function: current is never mutated, and the
// same inputs always produce bit-identical output. At-most-once application
// per match is the caller's responsibility.
func Apply(o Outcome, current map[string]Rating) (*Batch, error) {
	if err := validate(o); err != nil {
		return nil, err
	}

	for _, id := range append(append([]string{}, o.SideA...), o.SideB...) {
		if _, ok := current[id]; !ok {
			return nil, fmt.Errorf("%w: match %s references player %s with no rating state",
				ErrUnknownParticipant, o.MatchID, id)
		}
	}

	expectedA := ExpectedScore(sideRating(o.SideA, current), sideRating(o.SideB, current))
	expectedB := 1 - expectedA

	actualA, actualB := 1.0, 0.0
	if o.SideBWins > o.SideAWins {
		actualA, actualB = 0.0, 1.0
	}

	batch := &Batch{Ratings: make(map[string]Rating, len(o.SideA)+len(o.SideB))}

	apply := func(ids []string, actual, expected float64) {
		for _, id := range ids {
			state := current[id]
			k := KFactor(o, state.RatedMatches)
			delta := k * (actual - expected)

			change := Change{
				MatchID:   o.MatchID,
				PlayerID:  id,
				OldRating: state.Rating,
				NewRating: state.Rating + delta,
				Delta:     delta,
				KFactor:   k,
			}

			state.Rating = change.NewRating
			state.Peak = math.Max(state.Peak, state.Rating)
			state.RatedMatches++

			batch.Ratings[id] = state
			batch.History = append(batch.History, change)
		}
	}

	apply(o.SideA, actualA, expectedA)
	apply(o.SideB, actualB, expectedB)

	return batch, nil
}
