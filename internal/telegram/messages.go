package telegram

import (
	"context"
	"errors"
	"io"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
	"github.com/ignatzorin/studytips-bot/internal/validation"
)

func userKey(id int64) string {
	return "tg:" + strconv.FormatInt(id, 10)
}

func (h *Handler) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}

	user, err := h.ensureUser(ctx, m.From)
	if err != nil {
		h.log.WithError(err).WithField("user_id", m.From.ID).Error("failed to register user")
		h.send(ctx, m.Chat.ID, presenter.TextSomethingWrong, nil)
		return
	}
	if !h.allow(ctx, user.ID) {
		h.send(ctx, m.Chat.ID, presenter.TextRateLimited, nil)
		return
	}

	r := request{user: user, chatID: m.Chat.ID}
	if m.IsCommand() {
		h.handleCommand(ctx, r, m.Command(), m.CommandArguments())
		return
	}
	// Диалоги ведутся только в личных сообщениях.
	if !m.Chat.IsPrivate() {
		return
	}

	switch {
	case m.Document != nil:
		h.handleDocument(ctx, r, m.Document)
	case m.Text != "":
		h.handleText(ctx, r, m.Text)
	default:
		h.send(ctx, r.chatID, presenter.Problem("Отправьте текст или документ"), nil)
	}
}

// handleText сначала отдаёт текст ожидающему запросу, затем активному черновику заказа.
func (h *Handler) handleText(ctx context.Context, r request, text string) {
	prompt, err := h.dialogue.TakePrompt(ctx, r.chatID)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	if prompt != nil {
		h.handlePrompt(ctx, r, *prompt, text)
		return
	}

	session, err := h.dialogue.Active(ctx, r.chatID)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	if session == nil {
		h.mainMenu(ctx, r)
		return
	}

	reply, err := h.dialogue.HandleText(ctx, r.chatID, text)
	h.renderReply(ctx, r, reply, err)
}

func (h *Handler) handlePrompt(ctx context.Context, r request, p dialogue.Prompt, text string) {
	var err error
	switch p.Kind {
	case dialogue.PromptDisputeReason:
		d, openErr := h.orders.OpenDispute(ctx, p.OrderID, r.user.ID, text)
		if err = openErr; err == nil {
			h.send(ctx, r.chatID, presenter.DisputeCreated(d), nil)
		}
	case dialogue.PromptNewBudget:
		budget, parseErr := validation.ParseBudget(text)
		if err = parseErr; err == nil {
			o, incErr := h.orders.IncreaseBudget(ctx, p.OrderID, r.user.ID, budget)
			if err = incErr; err == nil {
				h.send(ctx, r.chatID, presenter.BudgetIncreased(o), presenter.OrderCreatedKeyboard(o.ID))
			}
		}
	case dialogue.PromptRatingComment:
		if err = h.orders.CommentRating(ctx, p.OrderID, r.user.ID, text); err == nil {
			h.send(ctx, r.chatID, presenter.TextCommentSaved, nil)
		}
	default:
		h.log.WithField("kind", p.Kind).Warn("unknown prompt kind")
		h.mainMenu(ctx, r)
		return
	}

	if err == nil {
		return
	}
	h.problem(ctx, r.chatID, err)
	// Ошибку ввода можно исправить следующим сообщением.
	if apperror.IsValidation(err) {
		if armErr := h.dialogue.AwaitInput(ctx, r.chatID, p); armErr != nil {
			h.log.WithError(armErr).Warn("failed to re-arm prompt")
		}
	}
}

func (h *Handler) handleDocument(ctx context.Context, r request, doc *tgbotapi.Document) {
	session, err := h.dialogue.Active(ctx, r.chatID)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	if session == nil {
		h.send(ctx, r.chatID, presenter.TextFileNotExpected, nil)
		return
	}

	fileID := doc.FileID
	reply, err := h.dialogue.HandleDocument(ctx, r.chatID, dialogue.Document{
		Name: doc.FileName,
		Size: int64(doc.FileSize),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return h.msg.DownloadFile(ctx, fileID)
		},
	})
	h.renderReply(ctx, r, reply, err)
}

// renderReply показывает результат шага диалога.
func (h *Handler) renderReply(ctx context.Context, r request, reply dialogue.Reply, err error) {
	if err != nil {
		h.problem(ctx, r.chatID, err)
		if errors.Is(err, dialogue.ErrNoSession) {
			h.mainMenu(ctx, request{user: r.user, chatID: r.chatID})
		}
		return
	}

	switch {
	case reply.Order != nil:
		h.log.WithFields(logrus.Fields{"order_id": reply.Order.ID, "user_id": r.user.ID}).Debug("dialogue finished")
		h.show(ctx, r, presenter.OrderCreated(reply.Order), presenter.OrderCreatedKeyboard(reply.Order.ID))
	case reply.Problem != nil && apperror.IsQuotaExceeded(reply.Problem):
		h.show(ctx, r, presenter.QuotaExceeded(h.cfg.MaxActiveOrders), presenter.BackToStart())
	case reply.Problem != nil && reply.Session != nil:
		// Повторяем подсказку текущего шага новым сообщением под ошибкой.
		h.send(ctx, r.chatID, presenter.Problem(apperror.MessageOf(reply.Problem, presenter.TextSomethingWrong)), nil)
		h.showStep(ctx, request{user: r.user, chatID: r.chatID}, reply.Session)
	case reply.Problem != nil:
		h.send(ctx, r.chatID, presenter.Problem(apperror.MessageOf(reply.Problem, presenter.TextSomethingWrong)), nil)
		h.mainMenu(ctx, request{user: r.user, chatID: r.chatID})
	case reply.Done:
		h.mainMenu(ctx, r)
	case reply.Session != nil:
		h.showStep(ctx, r, reply.Session)
	}
}

func (h *Handler) showStep(ctx context.Context, r request, s *dialogue.Session) {
	text := presenter.StepPrompt(s.Step, h.cfg.AllowedExtensions, h.cfg.MaxFileSizeMB)
	if s.Step == dialogue.StepConfirming {
		text = presenter.Confirmation(s)
	}
	h.show(ctx, r, text, presenter.StepKeyboard(s.Step))
}
