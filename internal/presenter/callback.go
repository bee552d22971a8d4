package presenter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/models"
)

// Action действие, закодированное в callback data кнопки.
type Action string

const (
	ActionCreateOrder Action = "create_order"
	ActionMyOrders    Action = "my_orders"
	ActionMyWork      Action = "my_work"
	ActionOpenOrders  Action = "open_orders"
	ActionRules       Action = "show_rules"
	ActionBackToStart Action = "back_to_start"

	// Диалог создания заказа.
	ActionType         Action = "type"
	ActionBack         Action = "back"
	ActionSkip         Action = "skip"
	ActionConfirm      Action = "final_confirm"
	ActionEdit         Action = "edit_order"
	ActionCancelDialog Action = "cancel_dialog"

	// Действия с заказом.
	ActionAccept      Action = "accept"
	ActionCancel      Action = "cancel"
	ActionProgress    Action = "progress"
	ActionReview      Action = "review"
	ActionComplete    Action = "complete"
	ActionDispute     Action = "dispute"
	ActionTakeDispute Action = "take_dispute"
	ActionRate        Action = "rate"
	ActionIncrease    Action = "increase"
	ActionShow        Action = "show"
)

const sep = ":"

// Callback разобранные данные кнопки.
type Callback struct {
	Action   Action
	ID       uuid.UUID
	WorkType models.WorkType
	Score    int
}

// Data собирает callback data без параметров.
func Data(a Action) string {
	return string(a)
}

// OrderData собирает callback data для действия над заказом или спором.
func OrderData(a Action, id uuid.UUID) string {
	return string(a) + sep + id.String()
}

// TypeData кнопка выбора типа работы.
func TypeData(t models.WorkType) string {
	return string(ActionType) + sep + string(t)
}

// RateData кнопка оценки.
func RateData(orderID uuid.UUID, score int) string {
	return OrderData(ActionRate, orderID) + sep + strconv.Itoa(score)
}

// ParseCallback разбирает callback data. Неизвестные действия и битые параметры дают ошибку.
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, sep)
	cb := Callback{Action: Action(parts[0])}

	switch cb.Action {
	case ActionCreateOrder, ActionMyOrders, ActionMyWork, ActionOpenOrders, ActionRules, ActionBackToStart,
		ActionBack, ActionSkip, ActionConfirm, ActionEdit, ActionCancelDialog:
		if len(parts) != 1 {
			return Callback{}, fmt.Errorf("callback %q: лишние параметры", data)
		}
		return cb, nil

	case ActionType:
		if len(parts) != 2 || !models.WorkType(parts[1]).IsValid() {
			return Callback{}, fmt.Errorf("callback %q: неизвестный тип работы", data)
		}
		cb.WorkType = models.WorkType(parts[1])
		return cb, nil

	case ActionRate:
		if len(parts) != 3 {
			return Callback{}, fmt.Errorf("callback %q: ожидается rate:<id>:<оценка>", data)
		}
		score, err := strconv.Atoi(parts[2])
		if err != nil || score < 1 || score > 5 {
			return Callback{}, fmt.Errorf("callback %q: оценка вне диапазона 1..5", data)
		}
		cb.Score = score
		parts = parts[:2]
		fallthrough

	case ActionAccept, ActionCancel, ActionProgress, ActionReview, ActionComplete,
		ActionDispute, ActionTakeDispute, ActionIncrease, ActionShow:
		if len(parts) != 2 {
			return Callback{}, fmt.Errorf("callback %q: ожидается идентификатор", data)
		}
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return Callback{}, fmt.Errorf("callback %q: %w", data, err)
		}
		cb.ID = id
		return cb, nil
	}

	return Callback{}, fmt.Errorf("callback %q: неизвестное действие", data)
}
