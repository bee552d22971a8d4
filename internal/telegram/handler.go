package telegram

import (
	"context"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/goroutine"
	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
	"github.com/ignatzorin/studytips-bot/internal/service"
)

// Messenger ответы пользователю в чате. Реализуется *Bot.
type Messenger interface {
	SendDirectMessage(ctx context.Context, chatID int64, text string, kb *models.Keyboard) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *models.Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Users операции с пользователями, которые нужны боту.
type Users interface {
	EnsureUser(ctx context.Context, u *models.User) (*models.User, error)
	SetRole(ctx context.Context, actorID, targetID int64, role models.Role) error
	IssueAdminToken(ctx context.Context, userID int64) (*service.AccessToken, error)
}

// Orders операции над заказами, доступные из чата.
type Orders interface {
	AcceptOrder(ctx context.Context, orderID uuid.UUID, executorID int64) (bool, error)
	StartWork(ctx context.Context, orderID uuid.UUID, executorID int64) (bool, error)
	SubmitForReview(ctx context.Context, orderID uuid.UUID, executorID int64) (bool, error)
	CompleteOrderAs(ctx context.Context, orderID uuid.UUID, actorID int64) (bool, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, canceledBy int64) (bool, error)
	IncreaseBudget(ctx context.Context, orderID uuid.UUID, clientID, newBudget int64) (*models.Order, error)
	OpenDispute(ctx context.Context, orderID uuid.UUID, openerID int64, reason string) (*models.Dispute, error)
	TakeDispute(ctx context.Context, disputeID uuid.UUID, adminID int64) (bool, error)
	ResolveDispute(ctx context.Context, disputeID uuid.UUID, adminID int64, resolution string, accept bool) (bool, error)
	RateOrder(ctx context.Context, orderID uuid.UUID, customerID int64, score int, comment string) (*models.Rating, error)
	CommentRating(ctx context.Context, orderID uuid.UUID, customerID int64, comment string) error
	RelayMessage(ctx context.Context, orderID uuid.UUID, fromID int64, text string) error
	GetOrder(ctx context.Context, orderID uuid.UUID, viewerID int64) (*models.Order, error)
	ListClientOrders(ctx context.Context, clientID int64, status *models.OrderStatus) ([]models.Order, error)
	ListExecutorOrders(ctx context.Context, executorID int64, status *models.OrderStatus) ([]models.Order, error)
	ExecutorRatings(ctx context.Context, executorID int64) ([]models.Rating, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
}

// Config параметры обработки обновлений.
type Config struct {
	SupportURL        string
	MaxActiveOrders   int
	AllowedExtensions []string
	MaxFileSizeMB     int64
	RateLimit         int64
	RatePeriod        time.Duration
	// OpenOrdersLimit сколько открытых заказов показывать исполнителю.
	OpenOrdersLimit int
}

// Handler маршрутизирует обновления Telegram в сервисы и диалог создания заказа.
type Handler struct {
	msg      Messenger
	users    Users
	orders   Orders
	dialogue *dialogue.Dialogue
	limiter  *limiter.Limiter
	queue    *goroutine.KeyedRunner[int64]
	cfg      Config
	log      *logrus.Entry
}

func NewHandler(msg Messenger, users Users, orders Orders, d *dialogue.Dialogue, cfg Config) *Handler {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RatePeriod <= 0 {
		cfg.RatePeriod = time.Minute
	}
	if cfg.OpenOrdersLimit <= 0 {
		cfg.OpenOrdersLimit = 20
	}

	rate := limiter.Rate{Period: cfg.RatePeriod, Limit: cfg.RateLimit}
	return &Handler{
		msg:      msg,
		users:    users,
		orders:   orders,
		dialogue: d,
		limiter:  limiter.New(memory.NewStore(), rate),
		queue:    goroutine.NewKeyedRunner[int64](nil),
		cfg:      cfg,
		log:      logger.WithComponent("telegram_handler"),
	}
}

// Dispatch обрабатывает обновление в фоне. Обновления одного пользователя
// выполняются по очереди в порядке поступления, разных пользователей параллельно.
func (h *Handler) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	h.queue.Go(senderKey(upd), func() { h.Handle(ctx, upd) })
}

// senderKey ключ очереди обновления. Черновик в личке привязан к пользователю,
// поэтому и нажатия в канале, и сообщения сериализуются по отправителю.
func senderKey(upd tgbotapi.Update) int64 {
	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	}
	return 0
}

// Handle обрабатывает одно обновление синхронно.
func (h *Handler) Handle(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// request контекст одного обращения пользователя.
type request struct {
	user   *models.User
	chatID int64
	// messageID сообщение с нажатой кнопкой, которое можно отредактировать. 0 для новых ответов.
	messageID int
}

// ensureUser регистрирует отправителя при первом обращении.
func (h *Handler) ensureUser(ctx context.Context, from *tgbotapi.User) (*models.User, error) {
	u := &models.User{ID: from.ID}
	if from.UserName != "" {
		u.Username = &from.UserName
	}
	if from.FirstName != "" {
		u.FirstName = &from.FirstName
	}
	if from.LastName != "" {
		u.LastName = &from.LastName
	}
	return h.users.EnsureUser(ctx, u)
}

// allow ограничивает частоту обращений одного пользователя.
func (h *Handler) allow(ctx context.Context, userID int64) bool {
	lc, err := h.limiter.Get(ctx, userKey(userID))
	if err != nil {
		h.log.WithError(err).Warn("rate limiter failed")
		return true
	}
	return !lc.Reached
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, kb *models.Keyboard) {
	if err := h.msg.SendDirectMessage(ctx, chatID, text, kb); err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Warn("reply failed")
	}
}

// show редактирует сообщение с кнопкой, а если его нет или правка не удалась, отправляет новое.
func (h *Handler) show(ctx context.Context, r request, text string, kb *models.Keyboard) {
	if r.messageID != 0 {
		err := h.msg.EditMessage(ctx, r.chatID, r.messageID, text, kb)
		if err == nil {
			return
		}
		h.log.WithError(err).WithField("chat_id", r.chatID).Debug("edit failed, sending new message")
	}
	h.send(ctx, r.chatID, text, kb)
}

func (h *Handler) mainMenu(ctx context.Context, r request) {
	h.show(ctx, r, presenter.Welcome(), presenter.MainMenu(r.user.Role, h.cfg.SupportURL))
}

// problem сообщает пользователю об ошибке.
func (h *Handler) problem(ctx context.Context, chatID int64, err error) {
	h.send(ctx, chatID, presenter.Problem(h.userMessage(err)), nil)
}

// userMessage текст ошибки для пользователя. Ошибки без прикладного кода
// логируются и заменяются общим текстом.
func (h *Handler) userMessage(err error) string {
	switch apperror.CodeOf(err) {
	case apperror.ErrCodeValidation, apperror.ErrCodeForbidden, apperror.ErrCodeNotFound,
		apperror.ErrCodeConflict, apperror.ErrCodeInvalidTransition, apperror.ErrCodeQuotaExceeded,
		apperror.ErrCodeUnauthorized:
		return apperror.MessageOf(err, presenter.TextSomethingWrong)
	}
	h.log.WithError(err).Error("request failed")
	return presenter.TextSomethingWrong
}

func (h *Handler) isStaff(u *models.User) bool {
	switch u.Role {
	case models.RoleExecutor, models.RoleAdmin:
		return true
	case models.RoleCustomer:
	}
	return false
}
