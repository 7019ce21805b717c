package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Eyedema/ttstats/internal/constants"
	"github.com/Eyedema/ttstats/internal/domain"
	"github.com/Eyedema/ttstats/internal/elo"
	"github.com/Eyedema/ttstats/internal/repository"

	"github.com/rs/zerolog"
)

// RatingService feeds fully confirmed matches into the rating engine and
// persists the result. The engine itself is pure; everything transactional
// lives here.
type RatingService struct {
	db          *sql.DB
	matchRepo   *repository.MatchRepository
	playerRepo  *repository.PlayerRepository
	historyRepo *repository.EloHistoryRepository
	logger      zerolog.Logger
}

func NewRatingService(sqlDB *sql.DB, matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, historyRepo *repository.EloHistoryRepository, logger zerolog.Logger) *RatingService {
	return &RatingService{db: sqlDB, matchRepo: matchRepo, playerRepo: playerRepo, historyRepo: historyRepo, logger: logger}
}

// ApplyMatch rates one fully confirmed match: player rows, history rows,
// and the match status move in a single transaction. A match whose history
// already exists is skipped, so the rating is applied at most once however
// often this is called.
func (s *RatingService) ApplyMatch(ctx context.Context, matchID string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	applied, err := s.historyRepo.ExistsForMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to check elo history for match %s: %w", matchID, err)
	}
	if applied {
		s.logger.Debug().Str("match_id", matchID).Msg("skipping elo update: already calculated")
		return nil
	}

	outcome, err := s.matchRepo.GetOutcome(ctx, matchID)
	if err != nil {
		return err
	}

	participants := append(append([]string{}, outcome.SideA...), outcome.SideB...)
	snapshot, err := s.playerRepo.RatingSnapshot(ctx, participants)
	if err != nil {
		return err
	}

	batch, err := elo.Apply(*outcome, snapshot)
	if err != nil {
		return fmt.Errorf("failed to rate match %s: %w", matchID, err)
	}

	now := time.Now()
	records := make([]domain.EloHistory, len(batch.History))
	for i, change := range batch.History {
		records[i] = domain.EloHistory{
			MatchID:      change.MatchID,
			PlayerID:     change.PlayerID,
			OldRating:    change.OldRating,
			NewRating:    change.NewRating,
			RatingChange: change.Delta,
			KFactor:      change.KFactor,
			CreatedAt:    now,
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.playerRepo.ApplyRatingsTx(ctx, tx, batch.Ratings); err != nil {
		return err
	}
	if err := s.historyRepo.InsertBatchTx(ctx, tx, records); err != nil {
		return err
	}
	if err := s.matchRepo.SetStatusTx(ctx, tx, matchID, domain.MatchRated); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rating update for match %s: %w", matchID, err)
	}

	for _, change := range batch.History {
		s.logger.Info().
			Str("match_id", matchID).
			Str("player_id", change.PlayerID).
			Float64("old_rating", change.OldRating).
			Float64("new_rating", change.NewRating).
			Float64("delta", change.Delta).
			Float64("k_factor", change.KFactor).
			Msg("elo updated")
	}

	return nil
}
