package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Eyedema/ttstats/internal/domain"
	"github.com/Eyedema/ttstats/internal/elo"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *PlayerRepository) Create(ctx context.Context, name string) (*domain.Player, error) {
	now := time.Now()
	player := &domain.Player{
		ID:        uuid.New().String(),
		Name:      name,
		EloRating: elo.InitialRating,
		EloPeak:   elo.InitialRating,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (id, name, elo_rating, elo_peak, matches_for_elo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		player.ID, player.Name, player.EloRating, player.EloPeak, player.MatchesForElo,
		player.CreatedAt, player.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create player %s: %w", name, err)
	}

	r.logger.Debug().Str("player_id", player.ID).Str("name", name).Msg("player created")
	return player, nil
}

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	var p domain.Player
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, elo_rating, elo_peak, matches_for_elo, created_at, updated_at
		FROM players WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.EloRating, &p.EloPeak, &p.MatchesForElo, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepository) ListAll(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, elo_rating, elo_peak, matches_for_elo, created_at, updated_at
		FROM players ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.EloRating, &p.EloPeak, &p.MatchesForElo,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// RatingSnapshot returns the current rating state of the given players,
// keyed by player ID, in the form the rating engine consumes.
func (r *PlayerRepository) RatingSnapshot(ctx context.Context, ids []string) (map[string]elo.Rating, error) {
	snapshot := make(map[string]elo.Rating, len(ids))
	for _, id := range ids {
		var state elo.Rating
		err := r.db.QueryRowContext(ctx, `
			SELECT elo_rating, elo_peak, matches_for_elo FROM players WHERE id = ?`, id,
		).Scan(&state.Rating, &state.Peak, &state.RatedMatches)
		if err == sql.ErrNoRows {
			continue // engine reports the missing participant
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load rating for player %s: %w", id, err)
		}
		snapshot[id] = state
	}
	return snapshot, nil
}

// ApplyRatingsTx writes engine output back to the player rows inside the
// caller's transaction.
func (r *PlayerRepository) ApplyRatingsTx(ctx context.Context, tx *sql.Tx, ratings map[string]elo.Rating) error {
	now := time.Now()
	for id, state := range ratings {
		res, err := tx.ExecContext(ctx, `
			UPDATE players
			SET elo_rating = ?, elo_peak = ?, matches_for_elo = ?, updated_at = ?
			WHERE id = ?`,
			state.Rating, state.Peak, state.RatedMatches, now, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update rating for player %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("player %s not found", id)
		}
	}
	return nil
}

// ResetAllTx puts every player back to the canonical starting state.
func (r *PlayerRepository) ResetAllTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE players
		SET elo_rating = ?, elo_peak = ?, matches_for_elo = 0, updated_at = ?`,
		elo.InitialRating, elo.InitialRating, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to reset player ratings: %w", err)
	}
	return nil
}
