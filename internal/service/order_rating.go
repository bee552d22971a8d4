package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/notify"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
	"github.com/ignatzorin/studytips-bot/internal/validation"
)

const (
	maxRatingCommentLength = 1000
	recentRatingsLimit     = 5
)

// RateOrder сохраняет оценку исполнителя по завершённому заказу.
// Заказ оценивается один раз, средний рейтинг исполнителя пересчитывается в той же транзакции.
func (s *OrderService) RateOrder(ctx context.Context, orderID uuid.UUID, customerID int64, score int, comment string) (*models.Rating, error) {
	if score < 1 || score > 5 {
		return nil, apperror.New(apperror.ErrCodeValidation, "оценка должна быть от 1 до 5")
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != customerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "оценить исполнителя может только заказчик")
	}
	if order.Status != models.OrderStatusCompleted || order.ExecutorID == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "оценить можно только завершенный заказ")
	}

	rating := &models.Rating{
		OrderID:    orderID,
		ExecutorID: *order.ExecutorID,
		CustomerID: customerID,
		Score:      score,
	}
	if comment = strings.TrimSpace(comment); comment != "" {
		if comment, err = validation.ValidateFreeText("Комментарий", comment, 1, maxRatingCommentLength); err != nil {
			return nil, err
		}
		rating.Comment = &comment
	}

	if err := s.ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, apperror.ErrAlreadyRated) {
			return nil, apperror.ErrAlreadyRated
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить оценку")
	}

	s.log.WithFields(logrus.Fields{
		"order_id":    orderID,
		"executor_id": rating.ExecutorID,
		"score":       score,
	}).Info("executor rated")

	s.notify.Send(ctx, notify.Message{UserID: rating.ExecutorID, Text: presenter.ExecutorRated(order, rating)})
	s.notify.Publish(notify.Event{Type: notify.EventExecutorRated, OrderID: orderID, Status: order.Status, ActorID: customerID})
	return rating, nil
}

// CommentRating добавляет комментарий к уже поставленной оценке.
func (s *OrderService) CommentRating(ctx context.Context, orderID uuid.UUID, customerID int64, comment string) error {
	comment, err := validation.ValidateFreeText("Комментарий", comment, 1, maxRatingCommentLength)
	if err != nil {
		return err
	}
	ok, err := s.ratings.SetComment(ctx, orderID, customerID, comment)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить комментарий")
	}
	if !ok {
		return apperror.New(apperror.ErrCodeNotFound, "оценка не найдена")
	}
	return nil
}

// ExecutorRatings последние оценки исполнителя для экрана "Моя работа".
func (s *OrderService) ExecutorRatings(ctx context.Context, executorID int64) ([]models.Rating, error) {
	ratings, err := s.ratings.ListByExecutor(ctx, executorID, recentRatingsLimit)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось загрузить оценки")
	}
	return ratings, nil
}
