package telegram

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/presenter"
)

func (h *Handler) handleCommand(ctx context.Context, r request, command, args string) {
	switch command {
	case "start":
		h.dropPrompt(ctx, r.chatID)
		h.mainMenu(ctx, r)
	case "help", "rules":
		h.send(ctx, r.chatID, presenter.Rules(h.cfg.MaxActiveOrders), presenter.BackToStart())
	case "orders":
		h.showClientOrders(ctx, r)
	case "cancel":
		h.dropPrompt(ctx, r.chatID)
		if _, err := h.dialogue.Cancel(ctx, r.chatID); err != nil {
			h.problem(ctx, r.chatID, err)
			return
		}
		h.send(ctx, r.chatID, presenter.TextActionCanceled, presenter.MainMenu(r.user.Role, h.cfg.SupportURL))
	case "msg":
		h.relay(ctx, r, args)
	case "setrole":
		h.setRole(ctx, r, args)
	case "resolve":
		h.resolve(ctx, r, args)
	case "token":
		h.token(ctx, r)
	default:
		h.send(ctx, r.chatID, presenter.TextUnknownCommand, nil)
	}
}

func (h *Handler) dropPrompt(ctx context.Context, conversationID int64) {
	if _, err := h.dialogue.TakePrompt(ctx, conversationID); err != nil {
		h.log.WithError(err).Debug("failed to drop prompt")
	}
}

// relay /msg <order_id> <текст>
func (h *Handler) relay(ctx context.Context, r request, args string) {
	rawID, text, ok := strings.Cut(strings.TrimSpace(args), " ")
	orderID, err := uuid.Parse(rawID)
	if !ok || err != nil || strings.TrimSpace(text) == "" {
		h.send(ctx, r.chatID, presenter.UsageMsg, nil)
		return
	}
	if err := h.orders.RelayMessage(ctx, orderID, r.user.ID, text); err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	h.send(ctx, r.chatID, presenter.TextMessageSent, nil)
}

// setRole /setrole <user_id> <role>
func (h *Handler) setRole(ctx context.Context, r request, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		h.send(ctx, r.chatID, presenter.UsageSetRole, nil)
		return
	}
	targetID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.send(ctx, r.chatID, presenter.UsageSetRole, nil)
		return
	}
	role, err := models.ParseRole(strings.ToLower(fields[1]))
	if err != nil {
		h.send(ctx, r.chatID, presenter.UsageSetRole, nil)
		return
	}

	if err := h.users.SetRole(ctx, r.user.ID, targetID, role); err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	h.send(ctx, r.chatID, presenter.TextRoleChanged, nil)
}

// resolve /resolve <dispute_id> accept|reject <решение>
func (h *Handler) resolve(ctx context.Context, r request, args string) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 3)
	if len(fields) != 3 {
		h.send(ctx, r.chatID, presenter.UsageResolve, nil)
		return
	}
	disputeID, err := uuid.Parse(fields[0])
	if err != nil {
		h.send(ctx, r.chatID, presenter.UsageResolve, nil)
		return
	}

	var accept bool
	switch strings.ToLower(fields[1]) {
	case "accept":
		accept = true
	case "reject":
	default:
		h.send(ctx, r.chatID, presenter.UsageResolve, nil)
		return
	}

	ok, err := h.orders.ResolveDispute(ctx, disputeID, r.user.ID, fields[2], accept)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	if !ok {
		h.send(ctx, r.chatID, presenter.TextDisputeMissing, nil)
		return
	}
	h.send(ctx, r.chatID, presenter.TextDisputeClosed, nil)
}

// token выдаёт администратору токен API. Токен всегда уходит в личный чат.
func (h *Handler) token(ctx context.Context, r request) {
	t, err := h.users.IssueAdminToken(ctx, r.user.ID)
	if err != nil {
		h.problem(ctx, r.chatID, err)
		return
	}
	h.send(ctx, r.user.ID, presenter.AdminToken(t.Token, t.ExpiresAt), nil)
}
