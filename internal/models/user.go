package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User пользователь бота, идентификатор выдаёт Telegram.
type User struct {
	ID              int64     `db:"id" json:"id"`
	Username        *string   `db:"username" json:"username,omitempty"`
	FirstName       *string   `db:"first_name" json:"first_name,omitempty"`
	LastName        *string   `db:"last_name" json:"last_name,omitempty"`
	Role            Role      `db:"role" json:"role"`
	Rating          float64   `db:"rating" json:"rating"`
	CompletedOrders int       `db:"completed_orders" json:"completed_orders"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Mention возвращает @username либо имя и фамилию.
func (u *User) Mention() string {
	if u == nil {
		return "неизвестный пользователь"
	}
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	if len(parts) == 0 {
		return "пользователь"
	}
	return strings.Join(parts, " ")
}

// Rating оценка исполнителя по завершённому заказу.
type Rating struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	ExecutorID int64     `db:"executor_id" json:"executor_id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Score      int       `db:"score" json:"score"`
	Comment    *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
