package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
)

// answer ответ на нажатие кнопки: короткий текст и признак всплывающего окна.
type answer struct {
	text  string
	alert bool
}

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}

	user, err := h.ensureUser(ctx, cq.From)
	if err != nil {
		h.log.WithError(err).WithField("user_id", cq.From.ID).Error("failed to register user")
		h.answer(ctx, cq.ID, answer{text: presenter.TextSomethingWrong, alert: true})
		return
	}
	if !h.allow(ctx, user.ID) {
		h.answer(ctx, cq.ID, answer{text: presenter.TextRateLimited, alert: true})
		return
	}

	cb, err := presenter.ParseCallback(cq.Data)
	if err != nil {
		h.log.WithError(err).Debug("bad callback data")
		h.answer(ctx, cq.ID, answer{text: presenter.TextStaleButton, alert: true})
		return
	}

	// Кнопки карточек в канале отвечают в личные сообщения.
	r := request{user: user, chatID: user.ID}
	if cq.Message != nil && cq.Message.Chat != nil && cq.Message.Chat.IsPrivate() {
		r.chatID = cq.Message.Chat.ID
		r.messageID = cq.Message.MessageID
	}

	h.answer(ctx, cq.ID, h.route(ctx, r, cb))
}

func (h *Handler) answer(ctx context.Context, callbackID string, a answer) {
	if err := h.msg.AnswerCallback(ctx, callbackID, a.text, a.alert); err != nil {
		h.log.WithError(err).Debug("answer callback failed")
	}
}

func (h *Handler) route(ctx context.Context, r request, cb presenter.Callback) answer {
	switch cb.Action {
	case presenter.ActionBackToStart:
		h.mainMenu(ctx, r)
	case presenter.ActionRules:
		h.show(ctx, r, presenter.Rules(h.cfg.MaxActiveOrders), presenter.BackToStart())
	case presenter.ActionMyOrders:
		h.showClientOrders(ctx, r)
	case presenter.ActionMyWork, presenter.ActionOpenOrders:
		if !h.isStaff(r.user) {
			return answer{text: presenter.TextExecutorsOnly, alert: true}
		}
		if cb.Action == presenter.ActionMyWork {
			h.showExecutorOrders(ctx, r)
		} else {
			h.showOpenOrders(ctx, r)
		}

	case presenter.ActionCreateOrder:
		reply, err := h.dialogue.Start(ctx, r.chatID, r.user.ID)
		h.renderReply(ctx, r, reply, err)
	case presenter.ActionType:
		reply, err := h.dialogue.SelectType(ctx, r.chatID, cb.WorkType)
		h.renderReply(ctx, r, reply, err)
	case presenter.ActionBack:
		reply, err := h.dialogue.Back(ctx, r.chatID)
		h.renderReply(ctx, r, reply, err)
	case presenter.ActionSkip:
		reply, err := h.dialogue.Skip(ctx, r.chatID)
		h.renderReply(ctx, r, reply, err)
	case presenter.ActionEdit:
		reply, err := h.dialogue.Edit(ctx, r.chatID)
		h.renderReply(ctx, r, reply, err)
	case presenter.ActionConfirm:
		reply, err := h.dialogue.Confirm(ctx, r.chatID)
		h.renderReply(ctx, r, reply, err)
	case presenter.ActionCancelDialog:
		reply, err := h.dialogue.Cancel(ctx, r.chatID)
		h.renderReply(ctx, r, reply, err)

	case presenter.ActionAccept:
		return h.transition(ctx, r, cb.ID, h.orders.AcceptOrder, presenter.TextAccepted, presenter.TextAcceptFailed)
	case presenter.ActionProgress:
		return h.transition(ctx, r, cb.ID, h.orders.StartWork, presenter.StatusLabel(models.OrderStatusInProgress), presenter.TextStatusUnchanged)
	case presenter.ActionReview:
		return h.transition(ctx, r, cb.ID, h.orders.SubmitForReview, presenter.StatusLabel(models.OrderStatusUnderReview), presenter.TextStatusUnchanged)
	case presenter.ActionComplete:
		return h.transition(ctx, r, cb.ID, h.orders.CompleteOrderAs, presenter.TextOrderCompleted, presenter.TextStatusUnchanged)
	case presenter.ActionCancel:
		return h.transition(ctx, r, cb.ID, h.orders.CancelOrder, presenter.TextOrderCanceled, presenter.TextCancelFailed)
	case presenter.ActionTakeDispute:
		return h.transition(ctx, r, cb.ID, h.orders.TakeDispute, presenter.TextDisputeTaken, presenter.TextDisputeBusy)

	case presenter.ActionDispute:
		return h.prompt(ctx, r, cb.ID, dialogue.PromptDisputeReason, presenter.AskDisputeReason)
	case presenter.ActionIncrease:
		return h.prompt(ctx, r, cb.ID, dialogue.PromptNewBudget, presenter.AskNewBudget)
	case presenter.ActionRate:
		return h.rate(ctx, r, cb.ID, cb.Score)
	case presenter.ActionShow:
		o, err := h.orders.GetOrder(ctx, cb.ID, r.user.ID)
		if err != nil {
			return h.failure(err)
		}
		h.show(ctx, r, presenter.OrderDetails(o), presenter.ParticipantKeyboard(o, r.user.ID))
	}
	return answer{}
}

// transition выполняет переход заказа или спора и отвечает на нажатие.
func (h *Handler) transition(ctx context.Context, r request, id uuid.UUID,
	fn func(context.Context, uuid.UUID, int64) (bool, error), okText, failText string,
) answer {
	ok, err := fn(ctx, id, r.user.ID)
	if err != nil {
		return h.failure(err)
	}
	if !ok {
		return answer{text: failText, alert: true}
	}
	return answer{text: okText}
}

// prompt просит следующим сообщением прислать текст для действия над заказом.
func (h *Handler) prompt(ctx context.Context, r request, orderID uuid.UUID, kind dialogue.PromptKind,
	text func(*models.Order) string,
) answer {
	o, err := h.orders.GetOrder(ctx, orderID, r.user.ID)
	if err != nil {
		return h.failure(err)
	}
	// Ввод всегда ожидается в личном чате пользователя.
	if err := h.dialogue.AwaitInput(ctx, r.user.ID, dialogue.Prompt{Kind: kind, OrderID: orderID, UserID: r.user.ID}); err != nil {
		return h.failure(err)
	}
	h.send(ctx, r.user.ID, text(o), nil)
	return answer{}
}

func (h *Handler) rate(ctx context.Context, r request, orderID uuid.UUID, score int) answer {
	if _, err := h.orders.RateOrder(ctx, orderID, r.user.ID, score, ""); err != nil {
		return h.failure(err)
	}
	if err := h.dialogue.AwaitInput(ctx, r.user.ID, dialogue.Prompt{
		Kind: dialogue.PromptRatingComment, OrderID: orderID, UserID: r.user.ID,
	}); err != nil {
		h.log.WithError(err).Warn("failed to await rating comment")
	}
	h.show(ctx, r, presenter.RatingThanks(score), nil)
	return answer{}
}

func (h *Handler) failure(err error) answer {
	return answer{text: limitRunes(h.userMessage(err), maxAnswerLength), alert: true}
}

// maxAnswerLength ограничение Telegram на текст ответа на нажатие.
const maxAnswerLength = 200

func limitRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (h *Handler) showClientOrders(ctx context.Context, r request) {
	orders, err := h.orders.ListClientOrders(ctx, r.user.ID, nil)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	h.show(ctx, r, presenter.OrderList("📋 <b>Ваши заказы</b>", orders), presenter.OrderListKeyboard(orders))
}

func (h *Handler) showExecutorOrders(ctx context.Context, r request) {
	orders, err := h.orders.ListExecutorOrders(ctx, r.user.ID, nil)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	ratings, err := h.orders.ExecutorRatings(ctx, r.user.ID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", r.user.ID).Warn("failed to load executor ratings")
	}
	text := presenter.OrderList("🛠 <b>Заказы в работе</b>", orders) + presenter.RecentRatings(ratings)
	h.show(ctx, r, text, presenter.OrderListKeyboard(orders))
}

func (h *Handler) showOpenOrders(ctx context.Context, r request) {
	orders, err := h.orders.ListByStatus(ctx, models.OrderStatusActive, h.cfg.OpenOrdersLimit)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	h.show(ctx, r, presenter.OrderList("🎯 <b>Открытые заказы</b>", orders), presenter.OpenOrdersKeyboard(orders))
}
