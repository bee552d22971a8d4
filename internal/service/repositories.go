package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/notify"
)

type UserRepository interface {
	UpsertOnFirstContact(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	SetRole(ctx context.Context, id int64, role models.Role) (bool, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.OrderStatus, to models.OrderStatus, fields map[string]interface{}) (bool, error)
	ListByClient(ctx context.Context, clientID int64, status *models.OrderStatus) ([]models.Order, error)
	ListByExecutor(ctx context.Context, executorID int64, status *models.OrderStatus) ([]models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
	CountByClientAndStatus(ctx context.Context, clientID int64, status models.OrderStatus) (int, error)
	AttachmentReferenced(ctx context.Context, path string) (bool, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute, orderFrom []models.OrderStatus) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	Take(ctx context.Context, id uuid.UUID, adminID int64) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, adminID int64, resolution string, to models.DisputeStatus, orderTo models.OrderStatus) (bool, error)
	CloseOpenByOrder(ctx context.Context, orderID uuid.UUID, to models.DisputeStatus, resolution string) (bool, error)
}

type RatingRepository interface {
	Create(ctx context.Context, rating *models.Rating) error
	SetComment(ctx context.Context, orderID uuid.UUID, customerID int64, comment string) (bool, error)
	ListByExecutor(ctx context.Context, executorID int64, limit int) ([]models.Rating, error)
}

type ChatRepository interface {
	Append(ctx context.Context, msg *models.ChatMessage) error
	ListByOrder(ctx context.Context, orderID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// Notifications граница отправки уведомлений, реализуется notify.Dispatcher.
type Notifications interface {
	Send(ctx context.Context, msgs ...notify.Message)
	PostCard(ctx context.Context, card notify.ChannelCard)
	Publish(ev notify.Event)
}

// Repositories набор хранилищ для сервисов.
type Repositories struct {
	Users    UserRepository
	Orders   OrderRepository
	Disputes DisputeRepository
	Ratings  RatingRepository
	Chats    ChatRepository
}
