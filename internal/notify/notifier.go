package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/models"
)

// Notifier транспорт, который умеет доставлять сообщения пользователям и в канал.
type Notifier interface {
	SendDirectMessage(ctx context.Context, userID int64, text string, kb *models.Keyboard) error
	// PostOrUpdateChannelMessage публикует карточку в канале. При ref != nil
	// редактирует уже опубликованное сообщение. Возвращает id сообщения.
	PostOrUpdateChannelMessage(ctx context.Context, channelID int64, ref *int, text string, kb *models.Keyboard) (int, error)
}

// EventType тип события жизненного цикла.
type EventType string

const (
	EventOrderCreated    EventType = "order.created"
	EventOrderTaken      EventType = "order.taken"
	EventOrderStatus     EventType = "order.status_changed"
	EventOrderBudget     EventType = "order.budget_changed"
	EventDisputeOpened   EventType = "dispute.opened"
	EventDisputeTaken    EventType = "dispute.taken"
	EventDisputeResolved EventType = "dispute.resolved"
	EventExecutorRated   EventType = "executor.rated"
)

// Event событие для живой ленты администраторов.
type Event struct {
	Type      EventType          `json:"type"`
	OrderID   uuid.UUID          `json:"order_id"`
	DisputeID *uuid.UUID         `json:"dispute_id,omitempty"`
	Status    models.OrderStatus `json:"status,omitempty"`
	ActorID   int64              `json:"actor_id,omitempty"`
	At        time.Time          `json:"at"`
}

// EventPublisher получатель событий, например websocket-хаб.
type EventPublisher interface {
	Publish(ev Event)
}

// Message одно личное сообщение.
type Message struct {
	UserID   int64
	Text     string
	Keyboard *models.Keyboard
}
