package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/repository/common"
)

// RatingRepository отвечает за оценки исполнителей.
type RatingRepository struct {
	db *sqlx.DB
}

func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Create сохраняет оценку и пересчитывает рейтинг исполнителя в той же транзакции.
// Повторная оценка того же заказа возвращает apperror.ErrAlreadyRated.
func (r *RatingRepository) Create(ctx context.Context, rating *models.Rating) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO ratings (order_id, executor_id, customer_id, score, comment)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, rating.OrderID, rating.ExecutorID, rating.CustomerID, rating.Score, rating.Comment,
		).Scan(&rating.ID, &rating.CreatedAt); err != nil {
			if common.IsUniqueViolation(err) {
				return apperror.ErrAlreadyRated
			}
			return fmt.Errorf("rating repository: create %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET
				rating = (SELECT COALESCE(AVG(score), 0) FROM ratings WHERE executor_id = $1),
				completed_orders = completed_orders + 1
			WHERE id = $1
		`, rating.ExecutorID); err != nil {
			return fmt.Errorf("rating repository: recompute %w", err)
		}

		return nil
	})
}

// ListByExecutor последние оценки исполнителя.
func (r *RatingRepository) ListByExecutor(ctx context.Context, executorID int64, limit int) ([]models.Rating, error) {
	var ratings []models.Rating
	if err := r.db.SelectContext(ctx, &ratings, `
		SELECT * FROM ratings WHERE executor_id = $1 ORDER BY created_at DESC LIMIT $2
	`, executorID, limit); err != nil {
		return nil, fmt.Errorf("rating repository: list %w", err)
	}
	return ratings, nil
}

// SetComment добавляет комментарий к уже выставленной оценке.
func (r *RatingRepository) SetComment(ctx context.Context, orderID uuid.UUID, customerID int64, comment string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ratings SET comment = $3 WHERE order_id = $1 AND customer_id = $2`,
		orderID, customerID, comment,
	)
	if err != nil {
		return false, fmt.Errorf("rating repository: set comment %w", err)
	}
	return rowsAffected(res)
}
