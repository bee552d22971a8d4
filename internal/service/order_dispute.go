package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/notify"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
	"github.com/ignatzorin/studytips-bot/internal/validation"
)

// OpenDispute открывает спор по заказу и переводит заказ в статус dispute.
// Вторая сторона получает уведомление, все администраторы получают карточку спора.
func (s *OrderService) OpenDispute(ctx context.Context, orderID uuid.UUID, openerID int64, reason string) (*models.Dispute, error) {
	reason, err := validation.ValidateFreeText("Причина спора", reason, validation.MinDescriptionLength, validation.MaxDescriptionLength)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(openerID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "открыть спор может только участник заказа")
	}
	if !order.Status.CanTransitionTo(models.OrderStatusDispute) {
		if order.Status == models.OrderStatusDispute {
			return nil, apperror.ErrDisputeAlreadyOpen
		}
		return nil, apperror.Newf(apperror.ErrCodeInvalidTransition,
			"спор нельзя открыть для заказа в статусе %q", presenter.StatusLabel(order.Status))
	}

	dispute := &models.Dispute{
		ID:       uuid.New(),
		OrderID:  orderID,
		OpenedBy: openerID,
		Reason:   reason,
		Status:   models.DisputeStatusOpened,
	}
	ok, err := s.disputes.Create(ctx, dispute, []models.OrderStatus{order.Status})
	if err != nil {
		if errors.Is(err, apperror.ErrDisputeAlreadyOpen) {
			return nil, apperror.ErrDisputeAlreadyOpen
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось открыть спор")
	}
	if !ok {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "статус заказа изменился, обновите карточку")
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"dispute_id": dispute.ID,
		"opened_by":  openerID,
	}).Info("dispute opened")

	order.Status = models.OrderStatusDispute
	opener := s.userOrNil(ctx, openerID)

	var msgs []notify.Message
	if other, ok := order.Counterparty(openerID); ok {
		msgs = append(msgs, notify.Message{UserID: other, Text: presenter.DisputeOpened(order, opener, reason)})
	}
	admins, err := s.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.log.WithError(err).WithField("dispute_id", dispute.ID).Error("failed to list admins")
	}
	for _, admin := range admins {
		msgs = append(msgs, notify.Message{
			UserID:   admin.ID,
			Text:     presenter.DisputeForAdmins(dispute, opener),
			Keyboard: presenter.TakeDisputeKeyboard(dispute.ID),
		})
	}
	s.notify.Send(ctx, msgs...)

	s.refreshChannelCard(ctx, orderID)
	s.notify.Publish(notify.Event{
		Type:      notify.EventDisputeOpened,
		OrderID:   orderID,
		DisputeID: &dispute.ID,
		Status:    order.Status,
		ActorID:   openerID,
	})
	return dispute, nil
}

// TakeDispute администратор берёт спор в работу: opened -> in_progress.
func (s *OrderService) TakeDispute(ctx context.Context, disputeID uuid.UUID, adminID int64) (bool, error) {
	if !s.isAdmin(ctx, adminID) {
		return false, apperror.ErrForbidden
	}

	dispute, err := s.findDispute(ctx, disputeID)
	if err != nil || dispute == nil {
		return false, err
	}
	if dispute.Status != models.DisputeStatusOpened {
		return false, nil
	}

	ok, err := s.disputes.Take(ctx, disputeID, adminID)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось взять спор")
	}
	if !ok {
		return false, nil
	}
	dispute.Status = models.DisputeStatusInProgress
	dispute.AdminID = &adminID

	if order, err := s.findOrder(ctx, dispute.OrderID); err == nil && order != nil {
		text := presenter.DisputeTaken(dispute, s.userOrNil(ctx, adminID))
		var msgs []notify.Message
		for _, id := range participants(order) {
			msgs = append(msgs, notify.Message{UserID: id, Text: text})
		}
		s.notify.Send(ctx, msgs...)
	}

	s.notify.Publish(notify.Event{
		Type:      notify.EventDisputeTaken,
		OrderID:   dispute.OrderID,
		DisputeID: &dispute.ID,
		Status:    models.OrderStatusDispute,
		ActorID:   adminID,
	})
	return true, nil
}

// ResolveDispute закрывает открытый спор. accept отменяет заказ и помечает спор
// resolved, иначе спор rejected и заказ возвращается в работу.
// Спор и заказ меняются в одной транзакции.
func (s *OrderService) ResolveDispute(ctx context.Context, disputeID uuid.UUID, adminID int64, resolution string, accept bool) (bool, error) {
	if !s.isAdmin(ctx, adminID) {
		return false, apperror.ErrForbidden
	}
	resolution, err := validation.ValidateFreeText("Решение", resolution, 1, validation.MaxResolutionLength)
	if err != nil {
		return false, err
	}

	dispute, err := s.findDispute(ctx, disputeID)
	if err != nil || dispute == nil {
		return false, err
	}
	if !dispute.Status.IsOpen() {
		return false, nil
	}

	to, orderTo := models.DisputeStatusRejected, models.OrderStatusInProgress
	if accept {
		to, orderTo = models.DisputeStatusResolved, models.OrderStatusCanceled
	}

	ok, err := s.disputes.Resolve(ctx, disputeID, adminID, resolution, to, orderTo)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось закрыть спор")
	}
	if !ok {
		return false, nil
	}

	s.log.WithFields(logrus.Fields{
		"dispute_id": disputeID,
		"order_id":   dispute.OrderID,
		"admin_id":   adminID,
		"outcome":    to,
	}).Info("dispute resolved")

	order, err := s.findOrder(ctx, dispute.OrderID)
	if err == nil && order != nil {
		text := presenter.DisputeResolved(order, s.userOrNil(ctx, adminID), resolution, accept)
		var msgs []notify.Message
		for _, id := range participants(order) {
			msgs = append(msgs, notify.Message{UserID: id, Text: text, Keyboard: presenter.ParticipantKeyboard(order, id)})
		}
		s.notify.Send(ctx, msgs...)
	}

	s.refreshChannelCard(ctx, dispute.OrderID)
	s.notify.Publish(notify.Event{
		Type:      notify.EventDisputeResolved,
		OrderID:   dispute.OrderID,
		DisputeID: &dispute.ID,
		Status:    orderTo,
		ActorID:   adminID,
	})
	return true, nil
}

// GetDispute возвращает спор администратору или участнику заказа.
func (s *OrderService) GetDispute(ctx context.Context, disputeID uuid.UUID, viewerID int64) (*models.Dispute, error) {
	dispute, err := s.findDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, apperror.ErrDisputeNotFound
	}
	if s.isAdmin(ctx, viewerID) {
		return dispute, nil
	}
	order, err := s.getOrder(ctx, dispute.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(viewerID) {
		return nil, apperror.ErrForbidden
	}
	return dispute, nil
}

func (s *OrderService) findDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось загрузить спор")
	}
	return d, nil
}
