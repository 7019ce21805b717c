package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Eyedema/ttstats/internal/constants"
	"github.com/Eyedema/ttstats/internal/domain"
	"github.com/Eyedema/ttstats/internal/elo"
	"github.com/Eyedema/ttstats/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MatchService owns the match lifecycle: recording a result and collecting
// participant confirmations. When the last participant confirms, the match
// makes the explicit unconfirmed -> confirmed transition and its rating is
// applied in the same call.
type MatchService struct {
	matchRepo  *repository.MatchRepository
	playerRepo *repository.PlayerRepository
	ratingSvc  *RatingService
	logger     zerolog.Logger
}

func NewMatchService(matchRepo *repository.MatchRepository, playerRepo *repository.PlayerRepository, ratingSvc *RatingService, logger zerolog.Logger) *MatchService {
	return &MatchService{matchRepo: matchRepo, playerRepo: playerRepo, ratingSvc: ratingSvc, logger: logger}
}

type GameScore struct {
	SideA int
	SideB int
}

type RecordMatchParams struct {
	SideA     []string
	SideB     []string
	Games     []GameScore
	MatchType domain.MatchType
	BestOf    int
	PlayedAt  time.Time
}

// Record validates and stores a played match as unconfirmed. Side game
// wins are derived from the individual games; the match must have a
// strict winner who reached the best-of threshold.
func (s *MatchService) Record(ctx context.Context, params RecordMatchParams) (*domain.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	winsA, winsB, err := deriveWins(params.Games)
	if err != nil {
		return nil, err
	}

	matchID := uuid.New().String()
	outcome := elo.Outcome{
		MatchID:   matchID,
		SideA:     params.SideA,
		SideB:     params.SideB,
		SideAWins: winsA,
		SideBWins: winsB,
		BestOf:    params.BestOf,
		MatchType: params.MatchType,
		PlayedAt:  params.PlayedAt,
	}
	if err := elo.Validate(outcome); err != nil {
		return nil, err
	}

	gamesToWin := params.BestOf/2 + 1
	if winsA < gamesToWin && winsB < gamesToWin {
		return nil, fmt.Errorf("match is not finished: %d-%d in a best of %d",
			winsA, winsB, params.BestOf)
	}

	for _, id := range append(append([]string{}, params.SideA...), params.SideB...) {
		if _, err := s.playerRepo.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("player %s not found: %w", id, err)
		}
	}

	now := time.Now()
	match := &domain.Match{
		ID:        matchID,
		MatchType: params.MatchType,
		BestOf:    params.BestOf,
		SideAWins: winsA,
		SideBWins: winsB,
		Status:    domain.MatchUnconfirmed,
		PlayedAt:  params.PlayedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var participants []domain.MatchParticipant
	for _, id := range params.SideA {
		participants = append(participants, domain.MatchParticipant{MatchID: matchID, PlayerID: id, Side: domain.SideA})
	}
	for _, id := range params.SideB {
		participants = append(participants, domain.MatchParticipant{MatchID: matchID, PlayerID: id, Side: domain.SideB})
	}

	games := make([]domain.Game, len(params.Games))
	for i, g := range params.Games {
		games[i] = domain.Game{MatchID: matchID, GameNumber: i + 1, SideAScore: g.SideA, SideBScore: g.SideB}
	}

	if err := s.matchRepo.Create(ctx, match, participants, games); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("match_id", matchID).
		Str("match_type", string(params.MatchType)).
		Int("best_of", params.BestOf).
		Int("side_a_wins", winsA).
		Int("side_b_wins", winsB).
		Msg("match recorded")

	return match, nil
}

// Confirm records one participant's confirmation. Once every participant
// has confirmed (two for singles, four for doubles) the match transitions
// to confirmed and the rating engine is invoked.
func (s *MatchService) Confirm(ctx context.Context, matchID, playerID string) error {
	if err := s.matchRepo.Confirm(ctx, matchID, playerID); err != nil {
		return err
	}

	remaining, err := s.matchRepo.CountUnconfirmed(ctx, matchID)
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("match_id", matchID).
		Str("player_id", playerID).
		Int("remaining", remaining).
		Msg("match confirmation recorded")

	if remaining > 0 {
		return nil
	}

	match, err := s.matchRepo.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if match.Status != domain.MatchUnconfirmed {
		return nil
	}

	if err := s.matchRepo.SetStatus(ctx, matchID, domain.MatchConfirmed); err != nil {
		return err
	}
	s.logger.Info().Str("match_id", matchID).Msg("match fully confirmed")

	return s.ratingSvc.ApplyMatch(ctx, matchID)
}

func deriveWins(games []GameScore) (int, int, error) {
	if len(games) == 0 {
		return 0, 0, fmt.Errorf("match has no games")
	}

	winsA, winsB := 0, 0
	for i, g := range games {
		switch {
		case g.SideA > g.SideB:
			winsA++
		case g.SideB > g.SideA:
			winsB++
		default:
			return 0, 0, fmt.Errorf("game %d is tied %d-%d", i+1, g.SideA, g.SideB)
		}
	}
	return winsA, winsB, nil
}
