package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/repository/common"
)

// Статусы, в которых спор считается открытым.
var openDisputeStatuses = []models.DisputeStatus{
	models.DisputeStatusOpened,
	models.DisputeStatusInProgress,
}

// DisputeRepository отвечает за таблицу disputes.
type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор и переводит заказ в статус dispute одной транзакцией.
// Заказ должен находиться в одном из orderFrom, иначе возвращается false и ничего не пишется.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute, orderFrom []models.OrderStatus) (bool, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = models.DisputeStatusOpened

	opened := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1 AND status = ANY($3)`,
			d.OrderID, models.OrderStatusDispute, statusArray(orderFrom),
		)
		if err != nil {
			return fmt.Errorf("dispute repository: move order to dispute %w", err)
		}
		if ok, err := rowsAffected(res); err != nil || !ok {
			return err
		}

		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO disputes (id, order_id, opened_by, reason, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, d.ID, d.OrderID, d.OpenedBy, d.Reason, d.Status).Scan(&d.CreatedAt); err != nil {
			if common.IsUniqueViolation(err) {
				return apperror.ErrDisputeAlreadyOpen
			}
			return fmt.Errorf("dispute repository: create %w", err)
		}

		opened = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return opened, nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

// GetOpenByOrder возвращает открытый спор по заказу или apperror.ErrDisputeNotFound.
func (r *DisputeRepository) GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d,
		`SELECT * FROM disputes WHERE order_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 1`,
		orderID, disputeStatusArray(openDisputeStatuses),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: get open by order %w", err)
	}
	return &d, nil
}

// Take назначает администратора: opened -> in_progress.
func (r *DisputeRepository) Take(ctx context.Context, id uuid.UUID, adminID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE disputes SET status = $2, admin_id = $3 WHERE id = $1 AND status = $4`,
		id, models.DisputeStatusInProgress, adminID, models.DisputeStatusOpened,
	)
	if err != nil {
		return false, fmt.Errorf("dispute repository: take %w", err)
	}
	return rowsAffected(res)
}

// Resolve закрывает открытый спор и переводит заказ из dispute в orderTo одной транзакцией.
// false, если спор уже закрыт или заказ успел уйти из статуса dispute.
func (r *DisputeRepository) Resolve(
	ctx context.Context,
	id uuid.UUID,
	adminID int64,
	resolution string,
	to models.DisputeStatus,
	orderTo models.OrderStatus,
) (bool, error) {
	resolved := false
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var orderID uuid.UUID
		err := tx.QueryRowxContext(ctx, `
			UPDATE disputes
			SET status = $2, admin_id = $3, resolution = $4, resolved_at = NOW()
			WHERE id = $1 AND status = ANY($5)
			RETURNING order_id
		`, id, to, adminID, resolution, disputeStatusArray(openDisputeStatuses)).Scan(&orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dispute repository: resolve %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
			orderID, orderTo, models.OrderStatusDispute,
		)
		if err != nil {
			return fmt.Errorf("dispute repository: resolve order %w", err)
		}
		ok, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if !ok {
			// Откатываем закрытие спора, заказ уже изменили параллельно.
			return errStaleOrder
		}

		resolved = true
		return nil
	})
	if errors.Is(err, errStaleOrder) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resolved, nil
}

// CloseOpenByOrder закрывает открытый спор заказа без изменения самого заказа.
func (r *DisputeRepository) CloseOpenByOrder(ctx context.Context, orderID uuid.UUID, to models.DisputeStatus, resolution string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $2, resolution = $3, resolved_at = NOW()
		WHERE order_id = $1 AND status = ANY($4)
	`, orderID, to, resolution, disputeStatusArray(openDisputeStatuses))
	if err != nil {
		return false, fmt.Errorf("dispute repository: close by order %w", err)
	}
	return rowsAffected(res)
}

var errStaleOrder = errors.New("order left dispute status")

func disputeStatusArray(statuses []models.DisputeStatus) pq.StringArray {
	arr := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		arr[i] = string(s)
	}
	return arr
}
