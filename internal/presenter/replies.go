package presenter

import (
	"fmt"
	"time"

	"github.com/ignatzorin/studytips-bot/internal/models"
)

// Короткие ответы бота на команды и нажатия.
const (
	TextSomethingWrong  = "😔 Что-то пошло не так. Попробуйте ещё раз чуть позже."
	TextRateLimited     = "⏳ Слишком много запросов, подождите немного."
	TextStaleButton     = "Кнопка устарела"
	TextUnknownCommand  = "Неизвестная команда. Нажмите /start, чтобы открыть меню."
	TextActionCanceled  = "✖️ Действие отменено."
	TextFileNotExpected = "Сейчас файл не нужен. Чтобы оставить заказ, нажмите /start."
	TextExecutorsOnly   = "Раздел доступен только исполнителям"
	TextMessageSent     = "✉️ Сообщение отправлено."
	TextCommentSaved    = "🙏 Спасибо за отзыв!"
	TextRoleChanged     = "✅ Роль обновлена."

	TextAcceptFailed    = "Не удалось взять заказ: его уже приняли или отменили"
	TextAccepted        = "Заказ закреплен за вами"
	TextStatusUnchanged = "Статус заказа уже изменился"
	TextOrderCanceled   = "Заказ отменен"
	TextCancelFailed    = "Завершенный заказ отменить нельзя"
	TextDisputeTaken    = "Спор закреплен за вами"
	TextDisputeBusy     = "Спор уже взят или закрыт"
	TextDisputeClosed   = "✅ Спор закрыт."
	TextDisputeMissing  = "Спор уже закрыт или не найден."
	TextOrderCompleted  = "Заказ завершен"

	UsageMsg     = "Использование: <code>/msg &lt;id заказа&gt; текст</code>"
	UsageSetRole = "Использование: <code>/setrole &lt;id пользователя&gt; customer|executor|admin</code>"
	UsageResolve = "Использование: <code>/resolve &lt;id спора&gt; accept|reject решение</code>"
)

// DisputeCreated подтверждение открывшему спор.
func DisputeCreated(d *models.Dispute) string {
	return fmt.Sprintf("⚖️ Спор по заказу <code>%s</code> открыт.\n"+
		"Администратор свяжется с вами. ID спора: <code>%s</code>", d.OrderID, d.ID)
}

// AdminToken токен административного API.
func AdminToken(token string, expiresAt time.Time) string {
	return fmt.Sprintf("🔑 Токен API действует до %s UTC:\n\n<code>%s</code>",
		expiresAt.UTC().Format("02.01.2006 15:04"), esc(token))
}
