package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Eyedema/ttstats/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type EloHistoryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewEloHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *EloHistoryRepository {
	return &EloHistoryRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// InsertBatchTx inserts history records inside the caller's transaction,
// generating nanoids for records without one.
func (r *EloHistoryRepository) InsertBatchTx(ctx context.Context, tx *sql.Tx, records []domain.EloHistory) error {
	for _, record := range records {
		id := record.ID
		if id == "" {
			var err error
			id, err = gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO elo_history (id, match_id, player_id, old_rating, new_rating, rating_change, k_factor, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, record.MatchID, record.PlayerID, record.OldRating, record.NewRating,
			record.RatingChange, record.KFactor, record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert elo history %s/%s: %w", record.MatchID, record.PlayerID, err)
		}
	}
	return nil
}

func (r *EloHistoryRepository) InsertBatch(ctx context.Context, records []domain.EloHistory) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.InsertBatchTx(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAllTx clears the whole history, returning how many records went.
func (r *EloHistoryRepository) DeleteAllTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM elo_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete elo history: %w", err)
	}
	return res.RowsAffected()
}

// ExistsForMatch reports whether any rating change has been recorded for
// the match. A match's rating is applied at most once.
func (r *EloHistoryRepository) ExistsForMatch(ctx context.Context, matchID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM elo_history WHERE match_id = ?`, matchID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *EloHistoryRepository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]domain.EloHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, player_id, old_rating, new_rating, rating_change, k_factor, created_at
		FROM elo_history WHERE player_id = ?
		ORDER BY created_at DESC LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EloHistory
	for rows.Next() {
		var h domain.EloHistory
		if err := rows.Scan(&h.ID, &h.MatchID, &h.PlayerID, &h.OldRating, &h.NewRating,
			&h.RatingChange, &h.KFactor, &h.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (r *EloHistoryRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM elo_history`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
