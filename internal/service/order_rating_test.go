package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

func (f *orderFixture) completedOrder() models.Order {
	executor := testExecutorID
	return f.store.addOrder(models.Order{ClientID: testClientID, ExecutorID: &executor, Status: models.OrderStatusCompleted})
}

func TestOrderService_RateOrder_UpdatesMean(t *testing.T) {
	f := newOrderFixture(t, OrderConfig{})
	ctx := context.Background()

	first := f.takenOrder()
	ok, err := f.svc.CompleteOrder(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.RateOrder(ctx, first.ID, testClientID, 5, "")
	require.NoError(t, err)

	executor := f.store.user(testExecutorID)
	assert.InDelta(t, 5.0, executor.Rating, 0.001)
	assert.Equal(t, 1, executor.CompletedOrders)

	second := f.completedOrder()
	rating, err := f.svc.RateOrder(ctx, second.ID, testClientID, 4, "Хорошо, но с опозданием")
	require.NoError(t, err)
	require.NotNil(t, rating.Comment)

	executor = f.store.user(testExecutorID)
	assert.InDelta(t, 4.5, executor.Rating, 0.001)
	assert.Equal(t, 2, executor.CompletedOrders)
	assert.Equal(t, 3, f.notifier.sentTo(testExecutorID))
}

func TestOrderService_RateOrder_Twice(t *testing.T) {
	f := newOrderFixture(t, OrderConfig{})
	ctx := context.Background()
	order := f.completedOrder()

	_, err := f.svc.RateOrder(ctx, order.ID, testClientID, 3, "")
	require.NoError(t, err)

	_, err = f.svc.RateOrder(ctx, order.ID, testClientID, 5, "")
	assert.ErrorIs(t, err, apperror.ErrAlreadyRated)
	assert.Equal(t, 1, f.store.user(testExecutorID).CompletedOrders)
}

func TestOrderService_RateOrder_Validation(t *testing.T) {
	f := newOrderFixture(t, OrderConfig{})
	ctx := context.Background()
	order := f.completedOrder()

	_, err := f.svc.RateOrder(ctx, order.ID, testClientID, 6, "")
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.RateOrder(ctx, order.ID, testClientID, 0, "")
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.RateOrder(ctx, order.ID, testExecutorID, 5, "")
	assert.True(t, apperror.IsForbidden(err))

	taken := f.takenOrder()
	_, err = f.svc.RateOrder(ctx, taken.ID, testClientID, 5, "")
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestOrderService_CommentRating(t *testing.T) {
	f := newOrderFixture(t, OrderConfig{})
	ctx := context.Background()
	order := f.completedOrder()

	err := f.svc.CommentRating(ctx, order.ID, testClientID, "Спасибо!")
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.RateOrder(ctx, order.ID, testClientID, 5, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.CommentRating(ctx, order.ID, testClientID, "Спасибо!"))

	err = f.svc.CommentRating(ctx, order.ID, testClientID, "")
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_ExecutorRatings_NewestFirst(t *testing.T) {
	f := newOrderFixture(t, OrderConfig{})
	ctx := context.Background()

	for i := range recentRatingsLimit + 1 {
		order := f.completedOrder()
		_, err := f.svc.RateOrder(ctx, order.ID, testClientID, i%5+1, "")
		require.NoError(t, err)
	}

	ratings, err := f.svc.ExecutorRatings(ctx, testExecutorID)
	require.NoError(t, err)
	require.Len(t, ratings, recentRatingsLimit)
	assert.Greater(t, ratings[0].ID, ratings[len(ratings)-1].ID)

	none, err := f.svc.ExecutorRatings(ctx, testClientID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
