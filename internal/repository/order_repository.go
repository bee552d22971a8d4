package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/repository/common"
)

// Колонки, которые можно менять без смены статуса.
var orderMutableColumns = common.NewColumns(
	"subject", "description", "deadline", "budget",
	"file_path", "message_id", "executor_id", "completed_at",
)

// OrderRepository отвечает за таблицу orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository создаёт репозиторий заказов.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create сохраняет новый заказ. ID генерируется, если не задан.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusActive
	}

	query := `
		INSERT INTO orders (id, type, subject, description, deadline, budget, client_id, executor_id, status, file_path, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		order.ID, order.Type, order.Subject, order.Description, order.Deadline, order.Budget,
		order.ClientID, order.ExecutorID, order.Status, order.FilePath, order.ChannelMessageID,
	).Scan(&order.CreatedAt); err != nil {
		return fmt.Errorf("order repository: create %w", err)
	}

	return nil
}

// GetByID возвращает заказ или apperror.ErrOrderNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return common.GetByID[models.Order](ctx, r.db, "orders", id, apperror.ErrOrderNotFound)
}

// UpdateFields меняет произвольные поля заказа кроме статуса.
// Возвращает false, если заказа нет.
func (r *OrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	set, args, err := common.BuildSet(fields, orderMutableColumns, 2)
	if err != nil {
		return false, err
	}
	if set == "" {
		return false, nil
	}

	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $1`, set)
	res, err := r.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("order repository: update fields %w", err)
	}
	return rowsAffected(res)
}

// TransitionStatus переводит заказ в статус to, только если текущий статус входит в from.
// Дополнительные поля пишутся тем же запросом. false означает, что заказ
// уже в другом состоянии или отсутствует.
func (r *OrderRepository) TransitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from []models.OrderStatus,
	to models.OrderStatus,
	fields map[string]interface{},
) (bool, error) {
	set, args, err := common.BuildSet(fields, orderMutableColumns, 4)
	if err != nil {
		return false, err
	}

	query := `UPDATE orders SET status = $3`
	if set != "" {
		query += ", " + set
	}
	query += ` WHERE id = $1 AND status = ANY($2)`

	res, err := r.db.ExecContext(ctx, query, append([]interface{}{id, statusArray(from), to}, args...)...)
	if err != nil {
		return false, fmt.Errorf("order repository: transition status %w", err)
	}
	return rowsAffected(res)
}

// ListByClient возвращает заказы клиента, при status != nil только в этом статусе.
func (r *OrderRepository) ListByClient(ctx context.Context, clientID int64, status *models.OrderStatus) ([]models.Order, error) {
	return r.listByParticipant(ctx, "client_id", clientID, status)
}

// ListByExecutor возвращает заказы исполнителя.
func (r *OrderRepository) ListByExecutor(ctx context.Context, executorID int64, status *models.OrderStatus) ([]models.Order, error) {
	return r.listByParticipant(ctx, "executor_id", executorID, status)
}

func (r *OrderRepository) listByParticipant(ctx context.Context, column string, userID int64, status *models.OrderStatus) ([]models.Order, error) {
	query := fmt.Sprintf(`SELECT * FROM orders WHERE %s = $1`, column)
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("order repository: list by %s %w", column, err)
	}
	return orders, nil
}

// ListByStatus возвращает последние заказы в статусе. limit <= 0 снимает ограничение.
func (r *OrderRepository) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	query := `SELECT * FROM orders WHERE status = $1 ORDER BY created_at DESC`
	args := []interface{}{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("order repository: list by status %w", err)
	}
	return orders, nil
}

// CountByClientAndStatus считает заказы клиента в статусе.
func (r *OrderRepository) CountByClientAndStatus(ctx context.Context, clientID int64, status models.OrderStatus) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM orders WHERE client_id = $1 AND status = $2`, clientID, status,
	); err != nil {
		return 0, fmt.Errorf("order repository: count %w", err)
	}
	return count, nil
}

// AttachmentReferenced проверяет, что файл прикреплён к заказу или сообщению переписки.
func (r *OrderRepository) AttachmentReferenced(ctx context.Context, path string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE file_path = $1)
			OR EXISTS (SELECT 1 FROM chat_messages WHERE file_path = $1)
	`, path); err != nil {
		return false, fmt.Errorf("order repository: attachment referenced %w", err)
	}
	return exists, nil
}

func statusArray(statuses []models.OrderStatus) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}
