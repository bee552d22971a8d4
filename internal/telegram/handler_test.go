package telegram

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
	"github.com/ignatzorin/studytips-bot/internal/service"
)

const (
	testUserID    int64 = 100
	testChannelID int64 = -1001
)

type sentMessage struct {
	chatID int64
	text   string
	kb     *models.Keyboard
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	edits   []sentMessage
	answers []answer
}

func (m *fakeMessenger) SendDirectMessage(_ context.Context, chatID int64, text string, kb *models.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID, text, kb})
	return nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, chatID int64, _ int, text string, kb *models.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, sentMessage{chatID, text, kb})
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answer{text: text, alert: alert})
	return nil
}

func (m *fakeMessenger) DownloadFile(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
}

type fakeUsers struct {
	role models.Role
}

func (u *fakeUsers) EnsureUser(_ context.Context, user *models.User) (*models.User, error) {
	out := *user
	out.Role = u.role
	return &out, nil
}

func (u *fakeUsers) SetRole(context.Context, int64, int64, models.Role) error {
	return nil
}

func (u *fakeUsers) IssueAdminToken(context.Context, int64) (*service.AccessToken, error) {
	return &service.AccessToken{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) CheckQuota(ctx context.Context, clientID int64) error {
	return m.Called(ctx, clientID).Error(0)
}

func (m *mockOrders) CreateOrder(ctx context.Context, payload models.OrderPayload, clientID int64) (*models.Order, error) {
	args := m.Called(ctx, payload, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrders) AcceptOrder(ctx context.Context, id uuid.UUID, actor int64) (bool, error) {
	args := m.Called(ctx, id, actor)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) StartWork(ctx context.Context, id uuid.UUID, actor int64) (bool, error) {
	args := m.Called(ctx, id, actor)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) SubmitForReview(ctx context.Context, id uuid.UUID, actor int64) (bool, error) {
	args := m.Called(ctx, id, actor)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) CompleteOrderAs(ctx context.Context, id uuid.UUID, actor int64) (bool, error) {
	args := m.Called(ctx, id, actor)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) CancelOrder(ctx context.Context, id uuid.UUID, actor int64) (bool, error) {
	args := m.Called(ctx, id, actor)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) TakeDispute(ctx context.Context, id uuid.UUID, actor int64) (bool, error) {
	args := m.Called(ctx, id, actor)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) IncreaseBudget(ctx context.Context, id uuid.UUID, clientID, budget int64) (*models.Order, error) {
	args := m.Called(ctx, id, clientID, budget)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrders) OpenDispute(ctx context.Context, id uuid.UUID, opener int64, reason string) (*models.Dispute, error) {
	args := m.Called(ctx, id, opener, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockOrders) ResolveDispute(ctx context.Context, id uuid.UUID, admin int64, resolution string, accept bool) (bool, error) {
	args := m.Called(ctx, id, admin, resolution, accept)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrders) RateOrder(ctx context.Context, id uuid.UUID, customer int64, score int, comment string) (*models.Rating, error) {
	args := m.Called(ctx, id, customer, score, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rating), args.Error(1)
}

func (m *mockOrders) CommentRating(ctx context.Context, id uuid.UUID, customer int64, comment string) error {
	return m.Called(ctx, id, customer, comment).Error(0)
}

func (m *mockOrders) RelayMessage(ctx context.Context, id uuid.UUID, from int64, text string) error {
	return m.Called(ctx, id, from, text).Error(0)
}

func (m *mockOrders) GetOrder(ctx context.Context, id uuid.UUID, viewer int64) (*models.Order, error) {
	args := m.Called(ctx, id, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrders) ListClientOrders(ctx context.Context, clientID int64, status *models.OrderStatus) ([]models.Order, error) {
	args := m.Called(ctx, clientID, status)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrders) ListExecutorOrders(ctx context.Context, executorID int64, status *models.OrderStatus) ([]models.Order, error) {
	args := m.Called(ctx, executorID, status)
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *mockOrders) ExecutorRatings(ctx context.Context, executorID int64) ([]models.Rating, error) {
	args := m.Called(ctx, executorID)
	return args.Get(0).([]models.Rating), args.Error(1)
}

func (m *mockOrders) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	args := m.Called(ctx, status, limit)
	return args.Get(0).([]models.Order), args.Error(1)
}

type nopAttachments struct{}

func (nopAttachments) Save(context.Context, int64, string, io.Reader) (string, int64, error) {
	return "100/file.pdf", 8, nil
}

func (nopAttachments) Delete(context.Context, string) error { return nil }

func (nopAttachments) ListStale(context.Context, time.Time) ([]string, error) { return nil, nil }

type handlerFixture struct {
	msg    *fakeMessenger
	orders *mockOrders
	users  *fakeUsers
	h      *Handler
}

func newHandlerFixture(t *testing.T, role models.Role, cfg Config) *handlerFixture {
	t.Helper()
	msg := &fakeMessenger{}
	orders := new(mockOrders)
	users := &fakeUsers{role: role}

	d := dialogue.New(dialogue.NewMemoryStore(time.Hour), orders, nopAttachments{}, dialogue.Config{
		AllowedExtensions: []string{".pdf"},
		MaxFileBytes:      5 << 20,
	})
	cfg.MaxActiveOrders = 3
	cfg.AllowedExtensions = []string{".pdf"}
	cfg.MaxFileSizeMB = 5

	return &handlerFixture{msg: msg, orders: orders, users: users, h: NewHandler(msg, users, orders, d, cfg)}
}

func privateChat() *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: testUserID, Type: "private"}
}

func textUpdate(text string) tgbotapi.Update {
	m := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID, FirstName: "Anna"},
		Chat:      privateChat(),
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: m}
}

func callbackUpdate(data string, chat *tgbotapi.Chat) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUserID},
		Message: &tgbotapi.Message{MessageID: 5, Chat: chat},
		Data:    data,
	}}
}

func TestHandler_StartShowsMainMenu(t *testing.T) {
	f := newHandlerFixture(t, models.RoleExecutor, Config{SupportURL: "https://t.me/support"})

	f.h.Handle(context.Background(), textUpdate("/start"))

	require.Len(t, f.msg.sent, 1)
	assert.Equal(t, presenter.Welcome(), f.msg.sent[0].text)
	assert.Equal(t, presenter.MainMenu(models.RoleExecutor, "https://t.me/support"), f.msg.sent[0].kb)
}

func TestHandler_UnknownCommand(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})

	f.h.Handle(context.Background(), textUpdate("/foo"))

	require.Len(t, f.msg.sent, 1)
	assert.Equal(t, presenter.TextUnknownCommand, f.msg.sent[0].text)
}

func TestHandler_OrderDialogueEndToEnd(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})
	ctx := context.Background()
	chat := privateChat()

	created := &models.Order{ID: uuid.New(), Type: models.WorkTypeExam, Subject: "Физика", Deadline: "завтра", Budget: 1500}
	f.orders.On("CheckQuota", mock.Anything, testUserID).Return(nil)
	f.orders.On("CreateOrder", mock.Anything, models.OrderPayload{
		Type:        models.WorkTypeExam,
		Subject:     "Физика",
		Description: "Решить билеты к экзамену",
		Deadline:    "завтра",
		Budget:      1500,
	}, testUserID).Return(created, nil).Once()

	f.h.Handle(ctx, callbackUpdate(presenter.Data(presenter.ActionCreateOrder), chat))
	f.h.Handle(ctx, callbackUpdate(presenter.TypeData(models.WorkTypeExam), chat))
	f.h.Handle(ctx, textUpdate("Физика"))
	f.h.Handle(ctx, textUpdate("Решить билеты к экзамену"))
	f.h.Handle(ctx, textUpdate("завтра"))
	f.h.Handle(ctx, textUpdate("1500 руб"))
	f.h.Handle(ctx, callbackUpdate(presenter.Data(presenter.ActionSkip), chat))
	f.h.Handle(ctx, callbackUpdate(presenter.Data(presenter.ActionConfirm), chat))

	f.orders.AssertExpectations(t)
	require.NotEmpty(t, f.msg.edits)
	last := f.msg.edits[len(f.msg.edits)-1]
	assert.Equal(t, presenter.OrderCreated(created), last.text)
}

func TestHandler_InvalidBudgetRepromptsWithoutAdvancing(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})
	ctx := context.Background()
	chat := privateChat()
	f.orders.On("CheckQuota", mock.Anything, testUserID).Return(nil)

	f.h.Handle(ctx, callbackUpdate(presenter.Data(presenter.ActionCreateOrder), chat))
	f.h.Handle(ctx, callbackUpdate(presenter.TypeData(models.WorkTypeOther), chat))
	f.h.Handle(ctx, textUpdate("История"))
	f.h.Handle(ctx, textUpdate("Эссе про Петра I"))
	f.h.Handle(ctx, textUpdate("неделя"))
	f.h.Handle(ctx, textUpdate("дорого"))

	n := len(f.msg.sent)
	require.GreaterOrEqual(t, n, 2)
	assert.True(t, strings.HasPrefix(f.msg.sent[n-2].text, "⚠️"))
	assert.Equal(t, presenter.StepPrompt(dialogue.StepEnteringBudget, []string{".pdf"}, 5), f.msg.sent[n-1].text)
}

func TestHandler_AcceptFromChannelSoftFail(t *testing.T) {
	f := newHandlerFixture(t, models.RoleExecutor, Config{})
	orderID := uuid.New()
	f.orders.On("AcceptOrder", mock.Anything, orderID, testUserID).Return(false, nil).Once()

	f.h.Handle(context.Background(), callbackUpdate(presenter.OrderData(presenter.ActionAccept, orderID),
		&tgbotapi.Chat{ID: testChannelID, Type: "channel"}))

	f.orders.AssertExpectations(t)
	require.Len(t, f.msg.answers, 1)
	assert.Equal(t, answer{text: presenter.TextAcceptFailed, alert: true}, f.msg.answers[0])
	assert.Empty(t, f.msg.edits, "channel card is never edited by the handler")
}

func TestHandler_DisputePromptThenReason(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})
	ctx := context.Background()
	executor := int64(200)
	order := &models.Order{ID: uuid.New(), ClientID: testUserID, ExecutorID: &executor, Status: models.OrderStatusInProgress}
	dispute := &models.Dispute{ID: uuid.New(), OrderID: order.ID}

	f.orders.On("GetOrder", mock.Anything, order.ID, testUserID).Return(order, nil)
	f.orders.On("OpenDispute", mock.Anything, order.ID, testUserID, "Сроки сорваны").Return(dispute, nil).Once()

	f.h.Handle(ctx, callbackUpdate(presenter.OrderData(presenter.ActionDispute, order.ID), privateChat()))
	assert.Equal(t, presenter.AskDisputeReason(order), f.msg.sent[len(f.msg.sent)-1].text)

	f.h.Handle(ctx, textUpdate("Сроки сорваны"))

	f.orders.AssertExpectations(t)
	assert.Equal(t, presenter.DisputeCreated(dispute), f.msg.sent[len(f.msg.sent)-1].text)
}

func TestHandler_MsgCommand(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})
	ctx := context.Background()
	orderID := uuid.New()

	f.h.Handle(ctx, textUpdate("/msg not-an-id hello"))
	assert.Equal(t, presenter.UsageMsg, f.msg.sent[len(f.msg.sent)-1].text)

	f.orders.On("RelayMessage", mock.Anything, orderID, testUserID, "когда будет готово?").Return(nil).Once()
	f.h.Handle(ctx, textUpdate("/msg "+orderID.String()+" когда будет готово?"))

	f.orders.AssertExpectations(t)
	assert.Equal(t, presenter.TextMessageSent, f.msg.sent[len(f.msg.sent)-1].text)
}

func TestHandler_ResolveCommand(t *testing.T) {
	f := newHandlerFixture(t, models.RoleAdmin, Config{})
	ctx := context.Background()
	disputeID := uuid.New()

	f.orders.On("ResolveDispute", mock.Anything, disputeID, testUserID, "вернуть деньги", true).Return(true, nil).Once()
	f.h.Handle(ctx, textUpdate("/resolve "+disputeID.String()+" accept вернуть деньги"))
	assert.Equal(t, presenter.TextDisputeClosed, f.msg.sent[len(f.msg.sent)-1].text)

	f.h.Handle(ctx, textUpdate("/resolve "+disputeID.String()+" maybe текст"))
	assert.Equal(t, presenter.UsageResolve, f.msg.sent[len(f.msg.sent)-1].text)

	f.orders.AssertExpectations(t)
}

func TestHandler_RateLimit(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{RateLimit: 1, RatePeriod: time.Hour})
	ctx := context.Background()

	f.h.Handle(ctx, textUpdate("/start"))
	f.h.Handle(ctx, textUpdate("/start"))

	require.Len(t, f.msg.sent, 2)
	assert.Equal(t, presenter.TextRateLimited, f.msg.sent[1].text)
}

func TestHandler_StaleCallback(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})

	f.h.Handle(context.Background(), callbackUpdate("accept:not-a-uuid", privateChat()))

	require.Len(t, f.msg.answers, 1)
	assert.Equal(t, answer{text: presenter.TextStaleButton, alert: true}, f.msg.answers[0])
}

func TestHandler_OpenOrdersOnlyForExecutors(t *testing.T) {
	f := newHandlerFixture(t, models.RoleCustomer, Config{})

	f.h.Handle(context.Background(), callbackUpdate(presenter.Data(presenter.ActionOpenOrders), privateChat()))

	require.Len(t, f.msg.answers, 1)
	assert.Equal(t, answer{text: presenter.TextExecutorsOnly, alert: true}, f.msg.answers[0])
	f.orders.AssertNotCalled(t, "ListByStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_MyWorkShowsRecentRatings(t *testing.T) {
	f := newHandlerFixture(t, models.RoleExecutor, Config{})
	comment := "быстро и аккуратно"
	orders := []models.Order{{ID: uuid.New(), Type: models.WorkTypeExam, Subject: "Физика", Budget: 900, Status: models.OrderStatusInProgress}}
	ratings := []models.Rating{{Score: 5, Comment: &comment}, {Score: 4}}
	f.orders.On("ListExecutorOrders", mock.Anything, testUserID, (*models.OrderStatus)(nil)).Return(orders, nil)
	f.orders.On("ExecutorRatings", mock.Anything, testUserID).Return(ratings, nil)

	f.h.Handle(context.Background(), callbackUpdate(presenter.Data(presenter.ActionMyWork), privateChat()))

	require.Len(t, f.msg.edits, 1)
	text := f.msg.edits[0].text
	assert.Equal(t, presenter.OrderList("🛠 <b>Заказы в работе</b>", orders)+presenter.RecentRatings(ratings), text)
	assert.Contains(t, text, "быстро и аккуратно")
	f.orders.AssertExpectations(t)
}

func TestSenderKey_GroupsBySender(t *testing.T) {
	assert.Equal(t, testUserID, senderKey(textUpdate("Матанализ")))
	assert.Equal(t, testUserID, senderKey(callbackUpdate("confirm", &tgbotapi.Chat{ID: -100, Type: "channel"})))

	post := tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -100}}}
	assert.Equal(t, int64(-100), senderKey(post))
}
