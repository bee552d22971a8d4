package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studytips-bot/internal/http/handlers"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/ws"
)

const (
	adminToken    = "admin-token"
	customerToken = "customer-token"
	webhookSecret = "s3cret_webhook-path-token-0123"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, token string) (*models.User, error) {
	switch token {
	case adminToken:
		return &models.User{ID: 1, Role: models.RoleAdmin}, nil
	case customerToken:
		return &models.User{ID: 100, Role: models.RoleCustomer}, nil
	case "broken":
		return nil, errors.New("connection refused")
	default:
		return nil, apperror.ErrUnauthorized
	}
}

type fakeOrders struct {
	orders map[uuid.UUID]*models.Order
}

func (f *fakeOrders) GetOrder(_ context.Context, id uuid.UUID, _ int64) (*models.Order, error) {
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, apperror.ErrOrderNotFound
}

func (f *fakeOrders) ListByStatus(_ context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	if !status.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус")
	}
	var out []models.Order
	for _, o := range f.orders {
		if o.Status == status && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ChatHistory(_ context.Context, id uuid.UUID, _ int64, _ int) ([]models.ChatMessage, error) {
	if _, ok := f.orders[id]; !ok {
		return nil, apperror.ErrOrderNotFound
	}
	return []models.ChatMessage{{OrderID: id, UserID: 100, Message: "привет"}}, nil
}

func (f *fakeOrders) GetDispute(context.Context, uuid.UUID, int64) (*models.Dispute, error) {
	return nil, apperror.ErrDisputeNotFound
}

type recordingDispatcher struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (r *recordingDispatcher) Dispatch(_ context.Context, upd tgbotapi.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd)
}

type fixture struct {
	engine  *gin.Engine
	orders  *fakeOrders
	updates *recordingDispatcher
}

func newFixture(t *testing.T, healthErr error) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orders := &fakeOrders{orders: map[uuid.UUID]*models.Order{}}
	updates := &recordingDispatcher{}
	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": handlers.PingFunc(func(context.Context) error { return healthErr }),
	})

	engine := SetupRouter(Options{
		RateLimitLimit:  100,
		RateLimitPeriod: time.Minute,
		Auth:            fakeAuth{},
		Health:          health,
		Admin:           handlers.NewAdminHandler(orders),
		WS:              handlers.NewWSHandler(ws.NewHub(), fakeAuth{}, nil),
		Webhook:         handlers.NewWebhookHandler(updates, webhookSecret),
	})
	return &fixture{engine: engine, orders: orders, updates: updates}
}

func (f *fixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["database"])
}

func TestHealth_Unhealthy(t *testing.T) {
	f := newFixture(t, errors.New("down"))
	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAPI_RequiresToken(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/orders", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/orders", "garbage", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/orders", customerToken, nil).Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/orders", "broken", nil).Code)
}

func TestAdminAPI_ListOrders(t *testing.T) {
	f := newFixture(t, nil)
	active := &models.Order{ID: uuid.New(), Status: models.OrderStatusActive, ClientID: 100}
	done := &models.Order{ID: uuid.New(), Status: models.OrderStatusCompleted, ClientID: 100}
	f.orders.orders[active.ID] = active
	f.orders.orders[done.ID] = done

	w := f.do(http.MethodGet, "/api/orders", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, active.ID, resp.Orders[0].ID)

	w = f.do(http.MethodGet, "/api/orders?status=completed", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, done.ID, resp.Orders[0].ID)
}

func TestAdminAPI_ListOrders_BadStatus(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/api/orders?status=lost", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "неизвестный статус")
}

func TestAdminAPI_GetOrder(t *testing.T) {
	f := newFixture(t, nil)
	order := &models.Order{ID: uuid.New(), Status: models.OrderStatusActive, Subject: "Матанализ"}
	f.orders.orders[order.ID] = order

	w := f.do(http.MethodGet, "/api/orders/"+order.ID.String(), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Матанализ")

	w = f.do(http.MethodGet, "/api/orders/"+uuid.NewString(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "заказ не найден")

	w = f.do(http.MethodGet, "/api/orders/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAPI_Messages(t *testing.T) {
	f := newFixture(t, nil)
	order := &models.Order{ID: uuid.New(), Status: models.OrderStatusTaken}
	f.orders.orders[order.ID] = order

	w := f.do(http.MethodGet, "/api/orders/"+order.ID.String()+"/messages", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "привет")
}

func TestAdminAPI_DisputeNotFound(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/api/disputes/"+uuid.NewString(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhook_DispatchesUpdate(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/telegram/webhook/"+webhookSecret, "", []byte(`{"update_id": 42, "message": {"message_id": 1, "text": "/start", "chat": {"id": 7, "type": "private"}}}`))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, f.updates.updates, 1)
	assert.Equal(t, 42, f.updates.updates[0].UpdateID)
	assert.Equal(t, "/start", f.updates.updates[0].Message.Text)
}

func TestWebhook_BadBody(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/telegram/webhook/"+webhookSecret, "", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.updates.updates)
}

func TestWebhook_RejectsUpdatesWithoutSecret(t *testing.T) {
	f := newFixture(t, nil)
	forged := []byte(`{"update_id": 7, "message": {"message_id": 1, "from": {"id": 1}, "text": "/setrole 300 admin", "chat": {"id": 1, "type": "private"}}}`)

	for _, path := range []string{
		"/telegram/webhook/wrong-secret-value-0123456789",
		"/telegram/webhook/" + webhookSecret[:len(webhookSecret)-1],
		"/telegram/webhook/" + webhookSecret + "x",
	} {
		w := f.do(http.MethodPost, path, "", forged)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := f.do(http.MethodPost, "/telegram/webhook", "", forged)
	assert.NotEqual(t, http.StatusOK, w.Code)

	assert.Empty(t, f.updates.updates)
}

func TestWebhook_EmptySecretRejectsEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	updates := &recordingDispatcher{}
	r := gin.New()
	r.POST("/telegram/webhook/:secret", handlers.NewWebhookHandler(updates, "").Handle)

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook/anything", bytes.NewReader([]byte(`{"update_id": 1}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, updates.updates)
}

func TestWS_RejectsNonAdmin(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/ws", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/ws?token="+customerToken, "", nil).Code)
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := SetupRouter(Options{
		AllowedOrigins: []string{"https://admin.example.com"},
		Auth:           fakeAuth{},
		Health:         handlers.NewHealthHandler(nil),
		Admin:          handlers.NewAdminHandler(&fakeOrders{}),
		WS:             handlers.NewWSHandler(ws.NewHub(), fakeAuth{}, nil),
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	// В режиме polling маршрут webhook не регистрируется.
	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook/"+webhookSecret, bytes.NewReader([]byte(`{}`)))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
