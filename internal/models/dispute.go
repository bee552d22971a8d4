package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute спор по заказу, который разбирает администратор.
type Dispute struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	OrderID    uuid.UUID     `db:"order_id" json:"order_id"`
	OpenedBy   int64         `db:"opened_by" json:"opened_by"`
	AdminID    *int64        `db:"admin_id" json:"admin_id,omitempty"`
	Reason     string        `db:"reason" json:"reason"`
	Status     DisputeStatus `db:"status" json:"status"`
	Resolution *string       `db:"resolution" json:"resolution,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}
