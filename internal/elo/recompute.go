package elo

import (
	"fmt"
	"sort"
)

// Result is the final state of a full recomputation: every player's rating
// after replaying all outcomes, plus the complete regenerated history in
// replay order.
type Result struct {
	Ratings map[string]Rating
	History []Change
}

// Recompute rebuilds every player's rating from the canonical starting
// state by replaying all outcomes in non-decreasing PlayedAt order, ties
// broken by match ID so the replay is deterministic. Players in playerIDs
// that appear in no outcome still come back reset to the starting state.
//
// Inputs are never mutated and nothing is persisted: the caller decides
// whether to commit the result or just report the diff. The first invalid
// outcome aborts the whole replay.
func Recompute(outcomes []Outcome, playerIDs []string) (*Result, error) {
	ratings := make(map[string]Rating, len(playerIDs))
	for _, id := range playerIDs {
		ratings[id] = NewRating()
	}

	replay := make([]Outcome, len(outcomes))
	copy(replay, outcomes)
	sort.SliceStable(replay, func(i, j int) bool {
		if !replay[i].PlayedAt.Equal(replay[j].PlayedAt) {
			return replay[i].PlayedAt.Before(replay[j].PlayedAt)
		}
		return replay[i].MatchID < replay[j].MatchID
	})

	result := &Result{Ratings: ratings}

	for _, o := range replay {
		batch, err := Apply(o, ratings)
		if err != nil {
			return nil, fmt.Errorf("recompute failed at match %s: %w", o.MatchID, err)
		}

		for id, state := range batch.Ratings {
			ratings[id] = state
		}
		result.History = append(result.History, batch.History...)
	}

	return result, nil
}
