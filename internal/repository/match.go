package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Eyedema/ttstats/internal/domain"
	"github.com/Eyedema/ttstats/internal/elo"

	"github.com/rs/zerolog"
)

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Create stores a match with its participants and games in one transaction.
func (r *MatchRepository) Create(ctx context.Context, match *domain.Match, participants []domain.MatchParticipant, games []domain.Game) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, match_type, best_of, side_a_wins, side_b_wins, status, played_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		match.ID, match.MatchType, match.BestOf, match.SideAWins, match.SideBWins,
		match.Status, match.PlayedAt, match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match %s: %w", match.ID, err)
	}

	for _, p := range participants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_participants (match_id, player_id, side, confirmed)
			VALUES (?, ?, ?, ?)`,
			p.MatchID, p.PlayerID, p.Side, p.Confirmed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant %s/%s: %w", p.MatchID, p.PlayerID, err)
		}
	}

	for _, g := range games {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO games (match_id, game_number, side_a_score, side_b_score)
			VALUES (?, ?, ?, ?)`,
			g.MatchID, g.GameNumber, g.SideAScore, g.SideBScore,
		)
		if err != nil {
			return fmt.Errorf("failed to insert game %s/%d: %w", g.MatchID, g.GameNumber, err)
		}
	}

	return tx.Commit()
}

// Confirm records one participant's confirmation of the match result.
func (r *MatchRepository) Confirm(ctx context.Context, matchID, playerID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE match_participants SET confirmed = 1
		WHERE match_id = ? AND player_id = ?`,
		matchID, playerID,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm match %s for player %s: %w", matchID, playerID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("player %s is not a participant of match %s", playerID, matchID)
	}
	return nil
}

// CountUnconfirmed returns how many participants still have to confirm.
func (r *MatchRepository) CountUnconfirmed(ctx context.Context, matchID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM match_participants
		WHERE match_id = ? AND confirmed = 0`, matchID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MatchRepository) SetStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE matches SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set status of match %s: %w", matchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("match %s not found", matchID)
	}
	return nil
}

func (r *MatchRepository) SetStatusTx(ctx context.Context, tx *sql.Tx, matchID string, status domain.MatchStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE matches SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to set status of match %s: %w", matchID, err)
	}
	return nil
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	var m domain.Match
	err := r.db.QueryRowContext(ctx, `
		SELECT id, match_type, best_of, side_a_wins, side_b_wins, status, played_at, created_at, updated_at
		FROM matches WHERE id = ?`, matchID,
	).Scan(&m.ID, &m.MatchType, &m.BestOf, &m.SideAWins, &m.SideBWins, &m.Status,
		&m.PlayedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetOutcome loads one match as an engine outcome.
func (r *MatchRepository) GetOutcome(ctx context.Context, matchID string) (*elo.Outcome, error) {
	match, err := r.Get(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", matchID, err)
	}

	outcome := &elo.Outcome{
		MatchID:   match.ID,
		SideAWins: match.SideAWins,
		SideBWins: match.SideBWins,
		BestOf:    match.BestOf,
		MatchType: match.MatchType,
		PlayedAt:  match.PlayedAt,
	}
	if err := r.loadSides(ctx, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *MatchRepository) loadSides(ctx context.Context, outcome *elo.Outcome) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT player_id, side FROM match_participants
		WHERE match_id = ? ORDER BY side, player_id`, outcome.MatchID)
	if err != nil {
		return fmt.Errorf("failed to load participants of match %s: %w", outcome.MatchID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var playerID string
		var side domain.Side
		if err := rows.Scan(&playerID, &side); err != nil {
			return err
		}
		if side == domain.SideA {
			outcome.SideA = append(outcome.SideA, playerID)
		} else {
			outcome.SideB = append(outcome.SideB, playerID)
		}
	}
	return rows.Err()
}

// ListConfirmedOutcomes returns every fully confirmed match (including
// already rated ones) in replay order: played_at, then match ID.
func (r *MatchRepository) ListConfirmedOutcomes(ctx context.Context) ([]elo.Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_type, best_of, side_a_wins, side_b_wins, played_at
		FROM matches WHERE status != 'unconfirmed'
		ORDER BY played_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []elo.Outcome
	for rows.Next() {
		var o elo.Outcome
		if err := rows.Scan(&o.MatchID, &o.MatchType, &o.BestOf, &o.SideAWins, &o.SideBWins, &o.PlayedAt); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range outcomes {
		if err := r.loadSides(ctx, &outcomes[i]); err != nil {
			return nil, err
		}
	}

	r.logger.Debug().Int("count", len(outcomes)).Msg("loaded confirmed outcomes")
	return outcomes, nil
}

// MarkAllRatedTx flips every confirmed match to rated inside the caller's
// transaction (used after a full recomputation).
func (r *MatchRepository) MarkAllRatedTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE matches SET status = 'rated', updated_at = ?
		WHERE status = 'confirmed'`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark matches rated: %w", err)
	}
	return nil
}
