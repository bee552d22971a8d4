package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/studytips-bot/internal/models"
)

// ChatRepository журнал переписки по заказам. Только добавление.
type ChatRepository struct {
	db *sqlx.DB
}

func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	if err := r.db.QueryRowxContext(ctx, `
		INSERT INTO chat_messages (order_id, user_id, message, is_file, file_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, msg.OrderID, msg.UserID, msg.Message, msg.IsFile, msg.FilePath).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("chat repository: append %w", err)
	}
	return nil
}

// ListByOrder сообщения заказа в хронологическом порядке.
func (r *ChatRepository) ListByOrder(ctx context.Context, orderID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	if err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT * FROM chat_messages WHERE order_id = $1 ORDER BY created_at DESC LIMIT $2
		) last ORDER BY created_at ASC
	`, orderID, limit); err != nil {
		return nil, fmt.Errorf("chat repository: list %w", err)
	}
	return msgs, nil
}
