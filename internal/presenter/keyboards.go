package presenter

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/models"
)

func btn(text string, data string) models.Button {
	return models.Button{Text: text, Data: data}
}

// MainMenu главное меню. Кнопки исполнителя видны только исполнителям и администраторам.
func MainMenu(role models.Role, supportURL string) *models.Keyboard {
	kb := models.NewKeyboard(
		models.Row(btn("📝 Оставить заказ", Data(ActionCreateOrder))),
		models.Row(btn("📋 Мои заказы", Data(ActionMyOrders))),
	)
	switch role {
	case models.RoleExecutor, models.RoleAdmin:
		kb.Rows = append(kb.Rows,
			models.Row(btn("🛠 Моя работа", Data(ActionMyWork))),
			models.Row(btn("🎯 Открытые заказы", Data(ActionOpenOrders))),
		)
	case models.RoleCustomer:
	}
	kb.Rows = append(kb.Rows, models.Row(btn("ℹ️ Правила", Data(ActionRules))))
	if supportURL != "" {
		kb.Rows = append(kb.Rows, models.Row(models.Button{Text: "💬 Чат с поддержкой", URL: supportURL}))
	}
	return kb
}

// BackToStart одна кнопка возврата в меню.
func BackToStart() *models.Keyboard {
	return models.NewKeyboard(models.Row(btn("🔙 Назад", Data(ActionBackToStart))))
}

// StepKeyboard клавиатура шага диалога.
func StepKeyboard(step dialogue.Step) *models.Keyboard {
	back := btn("🔙 Назад", Data(ActionBack))
	cancel := btn("✖️ Отменить", Data(ActionCancelDialog))

	switch step {
	case dialogue.StepSelectingType:
		kb := models.NewKeyboard()
		for _, t := range models.WorkTypes {
			info := typeInfo(t)
			kb.Rows = append(kb.Rows, models.Row(btn(info.emoji+" "+info.title, TypeData(t))))
		}
		kb.Rows = append(kb.Rows, models.Row(back))
		return kb
	case dialogue.StepUploadingFile:
		return models.NewKeyboard(
			models.Row(btn("Пропустить", Data(ActionSkip))),
			models.Row(back, cancel),
		)
	case dialogue.StepConfirming:
		return models.NewKeyboard(
			models.Row(btn("✅ Да, создать", Data(ActionConfirm)), btn("✏️ Редактировать", Data(ActionEdit))),
			models.Row(back),
		)
	}
	return models.NewKeyboard(models.Row(back, cancel))
}

// OrderCreatedKeyboard кнопки после создания заказа.
func OrderCreatedKeyboard(orderID uuid.UUID) *models.Keyboard {
	return models.NewKeyboard(
		models.Row(btn("💰 Повысить бюджет", OrderData(ActionIncrease, orderID))),
		models.Row(btn("📋 Мои заказы", Data(ActionMyOrders))),
		models.Row(btn("🔙 В главное меню", Data(ActionBackToStart))),
	)
}

// ChannelKeyboard кнопки карточки в канале по статусу заказа.
// disputeID нужен только для статуса dispute.
func ChannelKeyboard(o *models.Order, disputeID *uuid.UUID) *models.Keyboard {
	switch o.Status {
	case models.OrderStatusActive:
		return models.NewKeyboard(models.Row(
			btn("✅ Взять заказ", OrderData(ActionAccept, o.ID)),
			btn("❌ Отменить", OrderData(ActionCancel, o.ID)),
		))
	case models.OrderStatusTaken:
		return models.NewKeyboard(models.Row(
			btn("🔄 В работу", OrderData(ActionProgress, o.ID)),
			btn("❌ Отменить", OrderData(ActionCancel, o.ID)),
		))
	case models.OrderStatusInProgress:
		return models.NewKeyboard(models.Row(
			btn("🔍 На проверку", OrderData(ActionReview, o.ID)),
			btn("⚖️ Спор", OrderData(ActionDispute, o.ID)),
		))
	case models.OrderStatusUnderReview:
		return models.NewKeyboard(models.Row(
			btn("✅ Завершить", OrderData(ActionComplete, o.ID)),
			btn("⚖️ Спор", OrderData(ActionDispute, o.ID)),
		))
	case models.OrderStatusDispute:
		if disputeID != nil {
			return models.NewKeyboard(models.Row(btn("⚖️ Принять спор", OrderData(ActionTakeDispute, *disputeID))))
		}
	case models.OrderStatusCompleted, models.OrderStatusCanceled:
	}
	return nil
}

// ParticipantKeyboard действия, доступные участнику заказа в личном чате.
func ParticipantKeyboard(o *models.Order, viewerID int64) *models.Keyboard {
	isClient := viewerID == o.ClientID
	isExecutor := o.ExecutorID != nil && *o.ExecutorID == viewerID
	var row []models.Button

	switch o.Status {
	case models.OrderStatusActive:
		if isClient {
			row = append(row,
				btn("💰 Повысить бюджет", OrderData(ActionIncrease, o.ID)),
				btn("❌ Отменить", OrderData(ActionCancel, o.ID)))
		}
	case models.OrderStatusTaken:
		if isExecutor {
			row = append(row, btn("🔄 В работу", OrderData(ActionProgress, o.ID)))
		}
		row = append(row, btn("⚖️ Спор", OrderData(ActionDispute, o.ID)), btn("❌ Отменить", OrderData(ActionCancel, o.ID)))
	case models.OrderStatusInProgress:
		if isExecutor {
			row = append(row, btn("🔍 На проверку", OrderData(ActionReview, o.ID)))
		}
		row = append(row, btn("⚖️ Спор", OrderData(ActionDispute, o.ID)))
	case models.OrderStatusUnderReview:
		if isClient {
			row = append(row, btn("✅ Принять работу", OrderData(ActionComplete, o.ID)))
		}
		row = append(row, btn("⚖️ Спор", OrderData(ActionDispute, o.ID)))
	case models.OrderStatusDispute, models.OrderStatusCompleted, models.OrderStatusCanceled:
	}

	if len(row) == 0 {
		return nil
	}
	return models.NewKeyboard(row)
}

// OrderListKeyboard кнопки перехода к заказам из списка.
func OrderListKeyboard(orders []models.Order) *models.Keyboard {
	kb := models.NewKeyboard()
	for _, o := range orders {
		kb.Rows = append(kb.Rows, models.Row(btn(
			fmt.Sprintf("%s %s · %d₽", typeInfo(o.Type).emoji, truncate(o.Subject, 24), o.Budget),
			OrderData(ActionShow, o.ID),
		)))
	}
	kb.Rows = append(kb.Rows, models.Row(btn("🔙 В главное меню", Data(ActionBackToStart))))
	return kb
}

// OpenOrdersKeyboard список открытых заказов с кнопкой принятия.
func OpenOrdersKeyboard(orders []models.Order) *models.Keyboard {
	kb := models.NewKeyboard()
	for _, o := range orders {
		kb.Rows = append(kb.Rows, models.Row(btn(
			fmt.Sprintf("✅ %s · %d₽", truncate(o.Subject, 28), o.Budget),
			OrderData(ActionAccept, o.ID),
		)))
	}
	kb.Rows = append(kb.Rows, models.Row(btn("🔙 В главное меню", Data(ActionBackToStart))))
	return kb
}

// RatingKeyboard оценка от 1 до 5.
func RatingKeyboard(orderID uuid.UUID) *models.Keyboard {
	row := make([]models.Button, 0, 5)
	for i := 1; i <= 5; i++ {
		row = append(row, btn(fmt.Sprintf("%d⭐", i), RateData(orderID, i)))
	}
	return models.NewKeyboard(row)
}

// TakeDisputeKeyboard кнопка для администраторов.
func TakeDisputeKeyboard(disputeID uuid.UUID) *models.Keyboard {
	return models.NewKeyboard(models.Row(btn("⚖️ Принять спор", OrderData(ActionTakeDispute, disputeID))))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
