package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/notify"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
	"github.com/ignatzorin/studytips-bot/internal/validation"
)

// OrderConfig параметры жизненного цикла заказа.
type OrderConfig struct {
	MaxActiveOrders int
	// ChannelID канал, где публикуются карточки заказов. 0 отключает публикацию.
	ChannelID int64
}

// OrderService управляет жизненным циклом заказа, спорами и оценками.
// Каждая запись перечитывает заказ и меняет статус условным UPDATE по
// ожидаемому исходному статусу. Уведомления уходят после записи и не откатывают её.
type OrderService struct {
	users    UserRepository
	orders   OrderRepository
	disputes DisputeRepository
	ratings  RatingRepository
	chats    ChatRepository
	notify   Notifications
	cfg      OrderConfig
	log      *logrus.Entry
	now      func() time.Time
}

func NewOrderService(repos Repositories, n Notifications, cfg OrderConfig) *OrderService {
	return &OrderService{
		users:    repos.Users,
		orders:   repos.Orders,
		disputes: repos.Disputes,
		ratings:  repos.Ratings,
		chats:    repos.Chats,
		notify:   n,
		cfg:      cfg,
		log:      logger.WithComponent("order_service"),
		now:      time.Now,
	}
}

// CheckQuota возвращает QUOTA_EXCEEDED, если у клиента уже максимум активных заказов.
func (s *OrderService) CheckQuota(ctx context.Context, clientID int64) error {
	count, err := s.orders.CountByClientAndStatus(ctx, clientID, models.OrderStatusActive)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось проверить лимит заказов")
	}
	if count >= s.cfg.MaxActiveOrders {
		return apperror.Newf(apperror.ErrCodeQuotaExceeded,
			"Вы достигли лимита активных заказов (%d)", s.cfg.MaxActiveOrders)
	}
	return nil
}

// CreateOrder сохраняет активный заказ без исполнителя и публикует карточку в канале.
func (s *OrderService) CreateOrder(ctx context.Context, payload models.OrderPayload, clientID int64) (*models.Order, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	if err := s.CheckQuota(ctx, clientID); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          uuid.New(),
		Type:        payload.Type,
		Subject:     payload.Subject,
		Description: payload.Description,
		Deadline:    payload.Deadline,
		Budget:      payload.Budget,
		ClientID:    clientID,
		Status:      models.OrderStatusActive,
		FilePath:    payload.FilePath,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать заказ")
	}

	s.log.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"client_id": clientID,
		"budget":    order.Budget,
	}).Info("order created")

	s.refreshChannelCard(ctx, order.ID)
	s.notify.Publish(notify.Event{Type: notify.EventOrderCreated, OrderID: order.ID, Status: order.Status, ActorID: clientID})
	return order, nil
}

// AcceptOrder назначает исполнителя: active -> taken.
// false, если заказа нет, он не активен или его уже взял другой исполнитель.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID uuid.UUID, executorID int64) (bool, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil || order == nil {
		return false, err
	}
	if order.ClientID == executorID {
		return false, apperror.New(apperror.ErrCodeForbidden, "нельзя взять собственный заказ")
	}
	if order.Status != models.OrderStatusActive {
		return false, nil
	}

	ok, err := s.orders.TransitionStatus(ctx, orderID,
		[]models.OrderStatus{models.OrderStatusActive}, models.OrderStatusTaken,
		map[string]interface{}{"executor_id": executorID})
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось принять заказ")
	}
	if !ok {
		s.log.WithField("order_id", orderID).Debug("accept lost the race")
		return false, nil
	}

	order.Status = models.OrderStatusTaken
	order.ExecutorID = &executorID

	executor := s.userOrNil(ctx, executorID)
	s.notify.Send(ctx,
		notify.Message{UserID: order.ClientID, Text: presenter.OrderAccepted(order, executor)},
		notify.Message{UserID: executorID, Text: presenter.OrderDetails(order), Keyboard: presenter.ParticipantKeyboard(order, executorID)},
	)
	s.afterTransition(ctx, order, notify.EventOrderTaken, executorID)
	return true, nil
}

// StartWork исполнитель начинает работу: taken -> in_progress.
func (s *OrderService) StartWork(ctx context.Context, orderID uuid.UUID, executorID int64) (bool, error) {
	return s.executorStep(ctx, orderID, executorID, models.OrderStatusTaken, models.OrderStatusInProgress)
}

// SubmitForReview исполнитель сдаёт работу: in_progress -> under_review.
func (s *OrderService) SubmitForReview(ctx context.Context, orderID uuid.UUID, executorID int64) (bool, error) {
	return s.executorStep(ctx, orderID, executorID, models.OrderStatusInProgress, models.OrderStatusUnderReview)
}

func (s *OrderService) executorStep(ctx context.Context, orderID uuid.UUID, executorID int64, from, to models.OrderStatus) (bool, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil || order == nil {
		return false, err
	}
	if order.ExecutorID == nil || *order.ExecutorID != executorID {
		return false, apperror.New(apperror.ErrCodeForbidden, "действие доступно только исполнителю заказа")
	}
	if order.Status != from {
		return false, nil
	}

	ok, err := s.transition(ctx, order, to, nil)
	if err != nil || !ok {
		return ok, err
	}

	s.notify.Send(ctx, notify.Message{
		UserID:   order.ClientID,
		Text:     presenter.StatusChanged(order),
		Keyboard: presenter.ParticipantKeyboard(order, order.ClientID),
	})
	s.afterTransition(ctx, order, notify.EventOrderStatus, executorID)
	return true, nil
}

// CompleteOrder завершает заказ из taken, in_progress или under_review.
// Клиент получает клавиатуру оценки, исполнитель уведомление.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil || order == nil {
		return false, err
	}
	return s.complete(ctx, order, 0)
}

// CompleteOrderAs завершает заказ от имени клиента или администратора.
func (s *OrderService) CompleteOrderAs(ctx context.Context, orderID uuid.UUID, actorID int64) (bool, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil || order == nil {
		return false, err
	}
	if order.ClientID != actorID && !s.isAdmin(ctx, actorID) {
		return false, apperror.New(apperror.ErrCodeForbidden, "завершить заказ может только заказчик")
	}
	return s.complete(ctx, order, actorID)
}

func (s *OrderService) complete(ctx context.Context, order *models.Order, actorID int64) (bool, error) {
	if !order.Status.CanTransitionTo(models.OrderStatusCompleted) {
		return false, nil
	}

	now := s.now().UTC()
	ok, err := s.transition(ctx, order, models.OrderStatusCompleted, map[string]interface{}{"completed_at": now})
	if err != nil || !ok {
		return ok, err
	}
	order.CompletedAt = &now

	msgs := []notify.Message{{
		UserID:   order.ClientID,
		Text:     presenter.OrderCompleted(order, order.ExecutorID != nil),
		Keyboard: ratingKeyboard(order),
	}}
	if order.ExecutorID != nil {
		msgs = append(msgs, notify.Message{UserID: *order.ExecutorID, Text: presenter.OrderCompleted(order, false)})
	}
	s.notify.Send(ctx, msgs...)
	s.afterTransition(ctx, order, notify.EventOrderStatus, actorID)
	return true, nil
}

func ratingKeyboard(order *models.Order) *models.Keyboard {
	if order.ExecutorID == nil {
		return nil
	}
	return presenter.RatingKeyboard(order.ID)
}

// CancelOrder отменяет заказ из любого нетерминального статуса.
// Повторная отмена возвращает true без записи и уведомлений, завершённый заказ
// отменить нельзя. Открытый спор по заказу закрывается как rejected.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, canceledBy int64) (bool, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil || order == nil {
		return false, err
	}
	if !order.IsParticipant(canceledBy) && !s.isAdmin(ctx, canceledBy) {
		return false, apperror.New(apperror.ErrCodeForbidden, "отменить заказ может только его участник")
	}

	if order.Status.IsTerminal() {
		// Повторная отмена успешна, завершённый заказ не трогаем.
		return order.Status == models.OrderStatusCanceled, nil
	}

	prev := order.Status
	ok, err := s.transition(ctx, order, models.OrderStatusCanceled, nil)
	if err != nil {
		return false, err
	}
	if !ok {
		// Статус сменился между чтением и записью: параллельная отмена тоже успех.
		fresh, err := s.findOrder(ctx, orderID)
		if err != nil || fresh == nil {
			return false, err
		}
		return fresh.Status == models.OrderStatusCanceled, nil
	}

	if prev == models.OrderStatusDispute {
		if _, err := s.disputes.CloseOpenByOrder(ctx, orderID, models.DisputeStatusRejected, "заказ отменен"); err != nil {
			s.log.WithError(err).WithField("order_id", orderID).Error("failed to close dispute of canceled order")
		}
	}

	by := s.userOrNil(ctx, canceledBy)
	text := presenter.OrderCanceled(order, by)
	var msgs []notify.Message
	for _, id := range participants(order) {
		if id != canceledBy {
			msgs = append(msgs, notify.Message{UserID: id, Text: text})
		}
	}
	s.notify.Send(ctx, msgs...)

	s.log.WithFields(logrus.Fields{
		"order_id":    orderID,
		"canceled_by": canceledBy,
		"from":        prev,
	}).Info("order canceled")

	s.afterTransition(ctx, order, notify.EventOrderStatus, canceledBy)
	return true, nil
}

// IncreaseBudget повышает бюджет собственного активного заказа клиента.
func (s *OrderService) IncreaseBudget(ctx context.Context, orderID uuid.UUID, clientID, newBudget int64) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "изменить бюджет может только заказчик")
	}
	if order.Status != models.OrderStatusActive {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "повысить бюджет можно только у активного заказа")
	}
	if newBudget <= order.Budget {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "новый бюджет должен быть больше текущего (%d руб)", order.Budget)
	}
	if newBudget > validation.MaxBudget {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "бюджет не может превышать %d", validation.MaxBudget)
	}

	if _, err := s.orders.UpdateFields(ctx, orderID, map[string]interface{}{"budget": newBudget}); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось изменить бюджет")
	}
	order.Budget = newBudget

	s.refreshChannelCard(ctx, orderID)
	s.notify.Publish(notify.Event{Type: notify.EventOrderBudget, OrderID: orderID, Status: order.Status, ActorID: clientID})
	return order, nil
}

// GetOrder возвращает заказ участнику или администратору.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, viewerID int64) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(viewerID) && !s.isAdmin(ctx, viewerID) {
		return nil, apperror.ErrForbidden
	}
	return order, nil
}

// AttachmentInUse сообщает, что файл хранилища принадлежит сохранённому заказу или сообщению.
func (s *OrderService) AttachmentInUse(ctx context.Context, path string) (bool, error) {
	ok, err := s.orders.AttachmentReferenced(ctx, path)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось проверить вложение")
	}
	return ok, nil
}

// FindOrder возвращает заказ без проверки прав.
func (s *OrderService) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, orderID)
}

func (s *OrderService) ListClientOrders(ctx context.Context, clientID int64, status *models.OrderStatus) ([]models.Order, error) {
	return s.orders.ListByClient(ctx, clientID, status)
}

func (s *OrderService) ListExecutorOrders(ctx context.Context, executorID int64, status *models.OrderStatus) ([]models.Order, error) {
	return s.orders.ListByExecutor(ctx, executorID, status)
}

func (s *OrderService) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	if !status.IsValid() {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный статус %q", status)
	}
	return s.orders.ListByStatus(ctx, status, limit)
}

// RelayMessage сохраняет сообщение переписки и пересылает его второй стороне.
func (s *OrderService) RelayMessage(ctx context.Context, orderID uuid.UUID, fromID int64, text string) error {
	text, err := validation.ValidateFreeText("Сообщение", text, 1, validation.MaxMessageLength)
	if err != nil {
		return err
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	to, ok := order.Counterparty(fromID)
	if !ok {
		return apperror.New(apperror.ErrCodeForbidden, "переписка доступна участникам заказа после назначения исполнителя")
	}

	msg := &models.ChatMessage{OrderID: orderID, UserID: fromID, Message: text}
	if err := s.chats.Append(ctx, msg); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить сообщение")
	}

	s.notify.Send(ctx, notify.Message{UserID: to, Text: presenter.ChatRelay(order, s.userOrNil(ctx, fromID), text)})
	return nil
}

// ChatHistory последние сообщения переписки для участника.
func (s *OrderService) ChatHistory(ctx context.Context, orderID uuid.UUID, viewerID int64, limit int) ([]models.ChatMessage, error) {
	if _, err := s.GetOrder(ctx, orderID, viewerID); err != nil {
		return nil, err
	}
	return s.chats.ListByOrder(ctx, orderID, limit)
}

// transition меняет статус условным UPDATE от текущего статуса order.
// Переход должен быть разрешён таблицей переходов. order обновляется на месте.
func (s *OrderService) transition(ctx context.Context, order *models.Order, to models.OrderStatus, fields map[string]interface{}) (bool, error) {
	if !order.Status.CanTransitionTo(to) {
		return false, nil
	}

	ok, err := s.orders.TransitionStatus(ctx, order.ID, []models.OrderStatus{order.Status}, to, fields)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось изменить статус заказа")
	}
	if !ok {
		return false, nil
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"from":     order.Status,
		"to":       to,
	}).Info("order status changed")

	order.Status = to
	return true, nil
}

func (s *OrderService) afterTransition(ctx context.Context, order *models.Order, ev notify.EventType, actorID int64) {
	s.refreshChannelCard(ctx, order.ID)
	s.notify.Publish(notify.Event{Type: ev, OrderID: order.ID, Status: order.Status, ActorID: actorID})
}

// refreshChannelCard публикует или обновляет карточку заказа в канале. Заказ
// перечитывается в очереди карточки, так что отправляется последнее состояние.
func (s *OrderService) refreshChannelCard(ctx context.Context, orderID uuid.UUID) {
	if s.cfg.ChannelID == 0 {
		return
	}

	var ref *int
	s.notify.PostCard(ctx, notify.ChannelCard{
		ChannelID: s.cfg.ChannelID,
		Key:       orderID.String(),
		Render: func(ctx context.Context) (notify.CardContent, error) {
			order, err := s.orders.GetByID(ctx, orderID)
			if err != nil {
				return notify.CardContent{}, err
			}
			ref = order.ChannelMessageID

			var executor *models.User
			if order.ExecutorID != nil {
				executor = s.userOrNil(ctx, *order.ExecutorID)
			}

			var disputeID *uuid.UUID
			if order.Status == models.OrderStatusDispute {
				if d, err := s.disputes.GetOpenByOrder(ctx, orderID); err == nil {
					disputeID = &d.ID
				}
			}

			return notify.CardContent{
				Ref:      ref,
				Text:     presenter.ChannelCard(order, s.userOrNil(ctx, order.ClientID), executor),
				Keyboard: presenter.ChannelKeyboard(order, disputeID),
			}, nil
		},
		OnPosted: func(ctx context.Context, messageID int) {
			if ref != nil && *ref == messageID {
				return
			}
			if _, err := s.orders.UpdateFields(ctx, orderID, map[string]interface{}{"message_id": messageID}); err != nil {
				s.log.WithError(err).WithField("order_id", orderID).Error("failed to store channel message id")
			}
		},
	})
}

// findOrder возвращает nil без ошибки, если заказа нет.
func (s *OrderService) findOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось загрузить заказ")
	}
	return order, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) userOrNil(ctx context.Context, id int64) *models.User {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperror.ErrUserNotFound) {
			s.log.WithError(err).WithField("user_id", id).Warn("failed to load user")
		}
		return nil
	}
	return u
}

func (s *OrderService) isAdmin(ctx context.Context, id int64) bool {
	u := s.userOrNil(ctx, id)
	return u != nil && u.Role == models.RoleAdmin
}

func participants(o *models.Order) []int64 {
	ids := []int64{o.ClientID}
	if o.ExecutorID != nil && *o.ExecutorID != o.ClientID {
		ids = append(ids, *o.ExecutorID)
	}
	return ids
}

func validatePayload(p models.OrderPayload) error {
	switch {
	case !p.Type.IsValid():
		return apperror.New(apperror.ErrCodeValidation, "неизвестный тип работы")
	case p.Subject == "":
		return apperror.New(apperror.ErrCodeValidation, "укажите предмет")
	case p.Description == "":
		return apperror.New(apperror.ErrCodeValidation, "опишите задание")
	case p.Deadline == "":
		return apperror.New(apperror.ErrCodeValidation, "укажите срок")
	case p.Budget <= 0:
		return apperror.New(apperror.ErrCodeValidation, "бюджет должен быть больше нуля")
	}
	return nil
}
