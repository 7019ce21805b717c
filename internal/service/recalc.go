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
	"golang.org/x/sync/errgroup"
)

// RecalcService rebuilds every rating from scratch by replaying the full
// confirmed match history through the engine. Run after bug fixes or data
// corrections.
type RecalcService struct {
	db          *sql.DB
	matchRepo   *repository.MatchRepository
	playerRepo  *repository.PlayerRepository
	historyRepo *repository.EloHistoryRepository
	logger      zerolog.Logger
}

func NewRecalcService(sqlDB *sql.DB, matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, historyRepo *repository.EloHistoryRepository, logger zerolog.Logger) *RecalcService {
	return &RecalcService{db: sqlDB, matchRepo: matchRepo, playerRepo: playerRepo, historyRepo: historyRepo, logger: logger}
}

// PlayerDiff is one player's rating state before and after recomputation.
type PlayerDiff struct {
	PlayerID   string
	Name       string
	OldRating  float64
	NewRating  float64
	OldPeak    float64
	NewPeak    float64
	OldMatches int
	NewMatches int
}

// Summary reports what a recomputation did (or, for a dry run, would do).
type Summary struct {
	DryRun         bool
	Matches        int
	HistoryDeleted int
	Players        []PlayerDiff
}

// Run replays all confirmed matches chronologically and either commits the
// resulting ratings and history in one transaction or, in dry-run mode,
// only reports the before/after diff. Any invalid outcome in the history
// fails the whole run with nothing persisted.
func (s *RecalcService) Run(ctx context.Context, dryRun bool) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RecalcTimeout)
	defer cancel()

	var players []domain.Player
	var outcomes []elo.Outcome

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = s.playerRepo.ListAll(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		outcomes, err = s.matchRepo.ListConfirmedOutcomes(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load recalculation input: %w", err)
	}

	s.logger.Info().
		Int("players", len(players)).
		Int("matches", len(outcomes)).
		Bool("dry_run", dryRun).
		Msg("recalculating elo ratings")

	playerIDs := make([]string, len(players))
	for i, p := range players {
		playerIDs[i] = p.ID
	}

	result, err := elo.Recompute(outcomes, playerIDs)
	if err != nil {
		return nil, err
	}

	historyCount, err := s.historyRepo.Count(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		DryRun:         dryRun,
		Matches:        len(outcomes),
		HistoryDeleted: historyCount,
		Players:        make([]PlayerDiff, len(players)),
	}
	for i, p := range players {
		final := result.Ratings[p.ID]
		summary.Players[i] = PlayerDiff{
			PlayerID:   p.ID,
			Name:       p.Name,
			OldRating:  p.EloRating,
			NewRating:  final.Rating,
			OldPeak:    p.EloPeak,
			NewPeak:    final.Peak,
			OldMatches: p.MatchesForElo,
			NewMatches: final.RatedMatches,
		}
	}

	if dryRun {
		return summary, nil
	}

	if err := s.commit(ctx, result); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("matches", summary.Matches).
		Int("history_deleted", summary.HistoryDeleted).
		Int("history_written", len(result.History)).
		Msg("elo recalculation committed")

	return summary, nil
}

func (s *RecalcService) commit(ctx context.Context, result *elo.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.playerRepo.ResetAllTx(ctx, tx); err != nil {
		return err
	}
	if _, err := s.historyRepo.DeleteAllTx(ctx, tx); err != nil {
		return err
	}
	if err := s.playerRepo.ApplyRatingsTx(ctx, tx, result.Ratings); err != nil {
		return err
	}

	now := time.Now()
	records := make([]domain.EloHistory, 0, len(result.History))
	matchesDone := 0
	lastMatch := ""
	for _, change := range result.History {
		if change.MatchID != lastMatch {
			matchesDone++
			lastMatch = change.MatchID
			if matchesDone%constants.RecalcProgressEvery == 0 {
				s.logger.Info().Int("matches", matchesDone).Msg("recalculation progress")
			}
		}
		records = append(records, domain.EloHistory{
			MatchID:      change.MatchID,
			PlayerID:     change.PlayerID,
			OldRating:    change.OldRating,
			NewRating:    change.NewRating,
			RatingChange: change.Delta,
			KFactor:      change.KFactor,
			CreatedAt:    now,
		})
	}
	if err := s.historyRepo.InsertBatchTx(ctx, tx, records); err != nil {
		return err
	}

	if err := s.matchRepo.MarkAllRatedTx(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recalculation: %w", err)
	}
	return nil
}
