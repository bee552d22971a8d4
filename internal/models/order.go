package models

import (
	"time"

	"github.com/google/uuid"
)

// Order описывает заказ на учебную работу.
type Order struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	Type             WorkType    `db:"type" json:"type"`
	Subject          string      `db:"subject" json:"subject"`
	Description      string      `db:"description" json:"description"`
	Deadline         string      `db:"deadline" json:"deadline"`
	Budget           int64       `db:"budget" json:"budget"`
	ClientID         int64       `db:"client_id" json:"client_id"`
	ExecutorID       *int64      `db:"executor_id" json:"executor_id,omitempty"`
	Status           OrderStatus `db:"status" json:"status"`
	FilePath         *string     `db:"file_path" json:"file_path,omitempty"`
	ChannelMessageID *int        `db:"message_id" json:"message_id,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
}

// OrderPayload набор полей, собранный диалогом создания заказа.
type OrderPayload struct {
	Type        WorkType
	Subject     string
	Description string
	Deadline    string
	Budget      int64
	FilePath    *string
}

// Counterparty возвращает второго участника заказа относительно userID.
// ok == false, если userID не участник или второй участник ещё не назначен.
func (o *Order) Counterparty(userID int64) (int64, bool) {
	switch {
	case userID == o.ClientID:
		if o.ExecutorID == nil {
			return 0, false
		}
		return *o.ExecutorID, true
	case o.ExecutorID != nil && userID == *o.ExecutorID:
		return o.ClientID, true
	}
	return 0, false
}

// IsParticipant проверяет, что пользователь клиент или исполнитель заказа.
func (o *Order) IsParticipant(userID int64) bool {
	return userID == o.ClientID || (o.ExecutorID != nil && userID == *o.ExecutorID)
}

// ChatMessage сообщение в переписке по заказу.
type ChatMessage struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Message   string    `db:"message" json:"message"`
	IsFile    bool      `db:"is_file" json:"is_file"`
	FilePath  *string   `db:"file_path" json:"file_path,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
