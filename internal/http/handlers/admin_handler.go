package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/http/middleware"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// OrderReader операции чтения, доступные админ-API.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, viewerID int64) (*models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
	ChatHistory(ctx context.Context, orderID uuid.UUID, viewerID int64, limit int) ([]models.ChatMessage, error)
	GetDispute(ctx context.Context, disputeID uuid.UUID, viewerID int64) (*models.Dispute, error)
}

// AdminHandler read-only API для администраторов.
type AdminHandler struct {
	orders OrderReader
}

func NewAdminHandler(orders OrderReader) *AdminHandler {
	return &AdminHandler{orders: orders}
}

// ListOrders обрабатывает GET /api/orders?status=active&limit=50.
func (h *AdminHandler) ListOrders(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperror.ErrUnauthorized)
		return
	}

	status := models.OrderStatus(c.DefaultQuery("status", string(models.OrderStatusActive)))
	orders, err := h.orders.ListByStatus(c.Request.Context(), status, queryLimit(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "status": status, "viewer_id": user.ID})
}

// GetOrder обрабатывает GET /api/orders/:id.
func (h *AdminHandler) GetOrder(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperror.ErrUnauthorized)
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), middleware.ParamUUID(c, "id"), user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListMessages обрабатывает GET /api/orders/:id/messages.
func (h *AdminHandler) ListMessages(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperror.ErrUnauthorized)
		return
	}

	messages, err := h.orders.ChatHistory(c.Request.Context(), middleware.ParamUUID(c, "id"), user.ID, queryLimit(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// GetDispute обрабатывает GET /api/disputes/:id.
func (h *AdminHandler) GetDispute(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperror.ErrUnauthorized)
		return
	}

	dispute, err := h.orders.GetDispute(c.Request.Context(), middleware.ParamUUID(c, "id"), user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
