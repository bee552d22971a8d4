package presenter

import (
	"fmt"
	"html"
	"strings"

	"github.com/ignatzorin/studytips-bot/internal/dialogue"
	"github.com/ignatzorin/studytips-bot/internal/models"
)

// Тексты сообщений размечены в HTML, пользовательский ввод экранируется через esc.

type workTypeInfo struct {
	emoji string
	title string
}

var workTypes = map[models.WorkType]workTypeInfo{
	models.WorkTypeExam:       {"📚", "ЭКЗАМЕН"},
	models.WorkTypeCoursework: {"📝", "КУРСОВАЯ"},
	models.WorkTypeOther:      {"✏️", "ДРУГОЕ ЗАДАНИЕ"},
}

var statusTitles = map[models.OrderStatus]string{
	models.OrderStatusActive:      "🎯 АКТИВНЫЙ ЗАКАЗ",
	models.OrderStatusTaken:       "✅ ПРИНЯТ ИСПОЛНИТЕЛЕМ",
	models.OrderStatusInProgress:  "🔄 В РАБОТЕ",
	models.OrderStatusUnderReview: "🔍 НА ПРОВЕРКЕ",
	models.OrderStatusCompleted:   "🏁 ЗАВЕРШЕН",
	models.OrderStatusCanceled:    "❌ ОТМЕНЕН",
	models.OrderStatusDispute:     "⚖️ СПОР",
}

var statusShort = map[models.OrderStatus]string{
	models.OrderStatusActive:      "🟢 Активен",
	models.OrderStatusTaken:       "🟣 Принят",
	models.OrderStatusInProgress:  "🟠 В работе",
	models.OrderStatusUnderReview: "🔵 На проверке",
	models.OrderStatusCompleted:   "✅ Завершен",
	models.OrderStatusCanceled:    "❌ Отменен",
	models.OrderStatusDispute:     "⚖️ Спор",
}

func esc(s string) string {
	return html.EscapeString(s)
}

func typeInfo(t models.WorkType) workTypeInfo {
	if info, ok := workTypes[t]; ok {
		return info
	}
	return workTypes[models.WorkTypeOther]
}

// StatusLabel короткое название статуса для списков.
func StatusLabel(s models.OrderStatus) string {
	if label, ok := statusShort[s]; ok {
		return label
	}
	return string(s)
}

func mention(u *models.User) string {
	return esc(u.Mention())
}

// ShortID первые символы идентификатора для списков.
func ShortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

const header = "🔹 <b>STUDY TIPS</b>\n<i>Решаем, пишем, спасаем, пока ты отдыхаешь!</i>\n\n"

// Welcome главное меню.
func Welcome() string {
	return header + "Выберите действие:"
}

// Rules правила сервиса.
func Rules(maxActive int) string {
	return fmt.Sprintf("📜 <b>Правила сервиса STUDY TIPS</b>\n\n"+
		"1. Запрещено размещать заказы, нарушающие законодательство\n"+
		"2. Исполнитель обязан выполнить работу в срок\n"+
		"3. Заказчик обязан оплатить работу после проверки\n"+
		"4. Все споры решаются с участием администрации\n"+
		"5. Максимальное количество активных заказов: %d\n\n"+
		"⚠️ Нарушение правил может привести к блокировке!", maxActive)
}

// QuotaExceeded лимит активных заказов.
func QuotaExceeded(maxActive int) string {
	return fmt.Sprintf("⚠️ Вы достигли лимита активных заказов (%d)\n\n"+
		"Вы можете повысить бюджет существующих заказов или дождаться их выполнения", maxActive)
}

// StepPrompt подсказка для шага диалога.
func StepPrompt(step dialogue.Step, allowed []string, maxMB int64) string {
	switch step {
	case dialogue.StepSelectingType:
		return "📌 <b>Выберите тип работы:</b>"
	case dialogue.StepEnteringSubject:
		return stepTitle("📚", step, "Укажите предмет/дисциплину") +
			"Пример:\n<i>Математика</i>\n<i>Теория вероятностей</i>\n<i>Программирование на Python</i>"
	case dialogue.StepEnteringDescription:
		return stepTitle("📝", step, "Опишите задание подробно") +
			"Пример:\n<i>Решить 5 задач по теории вероятностей из учебника Петрова</i>\n" +
			"<i>Написать курсовую по экономике, 25-30 страниц</i>"
	case dialogue.StepEnteringDeadline:
		return stepTitle("⏰", step, "Укажите срок выполнения") +
			"Пример:\n<i>до 20 мая</i>\n<i>в течение 3 дней</i>\n<i>срочно, сегодня до 18:00</i>"
	case dialogue.StepEnteringBudget:
		return stepTitle("💰", step, "Укажите ваш бюджет") +
			"Пример:\n<i>1500 руб</i>\n<i>2000 рублей</i>\n<i>3000₽</i>"
	case dialogue.StepUploadingFile:
		formats := make([]string, 0, len(allowed))
		for _, ext := range allowed {
			formats = append(formats, strings.ToUpper(strings.TrimPrefix(ext, ".")))
		}
		return stepTitle("📎", step, "Прикрепите файл с заданием (если есть)") +
			fmt.Sprintf("Форматы: %s\nМаксимальный размер: %d МБ\n\n"+
				"Если файла нет, нажмите «Пропустить»", strings.Join(formats, ", "), maxMB)
	}
	return ""
}

func stepTitle(emoji string, step dialogue.Step, title string) string {
	return fmt.Sprintf("%s <b>Шаг %d из %d: %s</b>\n\n", emoji, step.Number(), dialogue.InputSteps, title)
}

// Confirmation экран проверки черновика.
func Confirmation(s *dialogue.Session) string {
	info := typeInfo(s.Type)
	var b strings.Builder
	b.WriteString("🔹 <b>Проверьте данные заказа</b>\n\n")
	fmt.Fprintf(&b, "%s <b>Тип работы:</b> %s\n", info.emoji, info.title)
	fmt.Fprintf(&b, "📚 <b>Предмет:</b> %s\n", esc(s.Subject))
	fmt.Fprintf(&b, "📝 <b>Описание:</b>\n%s\n", esc(s.Description))
	fmt.Fprintf(&b, "⏰ <b>Срок:</b> %s\n", esc(s.Deadline))
	fmt.Fprintf(&b, "💰 <b>Бюджет:</b> %d руб\n", s.Budget)
	if s.FilePath != nil {
		fmt.Fprintf(&b, "📎 <b>Файл:</b> %s\n", esc(s.FileName))
	}
	b.WriteString("\nВсё верно?")
	return b.String()
}

// OrderCreated ответ клиенту после создания.
func OrderCreated(o *models.Order) string {
	info := typeInfo(o.Type)
	return fmt.Sprintf("✅ <b>Ваш заказ успешно создан!</b>\n\n"+
		"%s <b>Тип:</b> %s\n"+
		"📚 <b>Предмет:</b> %s\n"+
		"💰 <b>Бюджет:</b> %d руб\n"+
		"⏰ <b>Срок:</b> %s\n\n"+
		"🆔 <b>ID:</b> <code>%s</code>\n\n"+
		"📌 Исполнители уже видят ваш заказ. Ожидайте предложений!",
		info.emoji, info.title, esc(o.Subject), o.Budget, esc(o.Deadline), o.ID)
}

// ChannelCard карточка заказа в канале исполнителей.
func ChannelCard(o *models.Order, client, executor *models.User) string {
	info := typeInfo(o.Type)
	title, ok := statusTitles[o.Status]
	if !ok {
		title = statusTitles[models.OrderStatusActive]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "%s <b>Тип:</b> %s\n", info.emoji, info.title)
	fmt.Fprintf(&b, "📚 <b>Предмет:</b> %s\n", esc(o.Subject))
	fmt.Fprintf(&b, "📝 <b>Описание:</b>\n%s\n", esc(o.Description))
	fmt.Fprintf(&b, "⏰ <b>Срок:</b> %s\n", esc(o.Deadline))
	fmt.Fprintf(&b, "💰 <b>Бюджет:</b> %d руб", o.Budget)
	if o.ExecutorID != nil {
		fmt.Fprintf(&b, "\n👨‍💻 <b>Исполнитель:</b> %s", mention(executor))
	}
	fmt.Fprintf(&b, "\n\n👤 <b>Клиент:</b> %s\n", mention(client))
	fmt.Fprintf(&b, "🆔 <b>ID:</b> <code>%s</code>", o.ID)
	return b.String()
}

// OrderAccepted уведомление клиенту о принятии заказа.
func OrderAccepted(o *models.Order, executor *models.User) string {
	return fmt.Sprintf("🎉 Ваш заказ <code>%s</code> принят исполнителем!\n\n"+
		"👨‍💻 <b>Исполнитель:</b> %s\n"+
		"📞 Свяжитесь с исполнителем для уточнения деталей командой\n<code>/msg %s текст</code>",
		o.ID, mention(executor), o.ID)
}

// StatusChanged уведомление о смене статуса исполнителем.
func StatusChanged(o *models.Order) string {
	return fmt.Sprintf("ℹ️ Статус заказа <code>%s</code>: %s\n\n📚 <b>Предмет:</b> %s",
		o.ID, StatusLabel(o.Status), esc(o.Subject))
}

// OrderCompleted уведомление о завершении.
func OrderCompleted(o *models.Order, askRating bool) string {
	text := fmt.Sprintf("🏁 Заказ <code>%s</code> завершен!\n\n"+
		"📚 <b>Предмет:</b> %s\n"+
		"💰 <b>Бюджет:</b> %d руб", o.ID, esc(o.Subject), o.Budget)
	if askRating {
		text += "\n\nПожалуйста, оцените работу исполнителя."
	}
	return text
}

// OrderCanceled уведомление об отмене.
func OrderCanceled(o *models.Order, by *models.User) string {
	return fmt.Sprintf("⚠️ Заказ <code>%s</code> отменен пользователем %s\n\n"+
		"📚 <b>Предмет:</b> %s\n"+
		"💰 <b>Бюджет:</b> %d руб", o.ID, mention(by), esc(o.Subject), o.Budget)
}

// BudgetIncreased подтверждение повышения бюджета.
func BudgetIncreased(o *models.Order) string {
	return fmt.Sprintf("💰 Бюджет заказа <code>%s</code> повышен до %d руб", o.ID, o.Budget)
}

// AskNewBudget запрос нового бюджета.
func AskNewBudget(o *models.Order) string {
	return fmt.Sprintf("💰 Текущий бюджет: %d руб\n\nВведите новую сумму, она должна быть больше текущей.", o.Budget)
}

// AskDisputeReason запрос причины спора.
func AskDisputeReason(o *models.Order) string {
	return fmt.Sprintf("⚖️ Опишите причину спора по заказу <code>%s</code> одним сообщением.", o.ID)
}

// DisputeOpened уведомление второй стороне.
func DisputeOpened(o *models.Order, opener *models.User, reason string) string {
	return fmt.Sprintf("⚖️ По заказу <code>%s</code> открыт спор!\n\n"+
		"👤 <b>Инициатор:</b> %s\n"+
		"📝 <b>Причина:</b> %s\n\n"+
		"Администратор скоро свяжется с вами для разрешения ситуации.",
		o.ID, mention(opener), esc(reason))
}

// DisputeForAdmins оповещение администраторов.
func DisputeForAdmins(d *models.Dispute, opener *models.User) string {
	return fmt.Sprintf("⚖️ <b>Новый спор!</b>\n\n"+
		"🆔 <b>ID спора:</b> <code>%s</code>\n"+
		"🆔 <b>ID заказа:</b> <code>%s</code>\n"+
		"👤 <b>Инициатор:</b> %s\n"+
		"📝 <b>Причина:</b> %s\n\n"+
		"Для принятия спора нажмите кнопку ниже.\n"+
		"Решение: <code>/resolve %s accept|reject текст</code>",
		d.ID, d.OrderID, mention(opener), esc(d.Reason), d.ID)
}

// DisputeTaken уведомление сторонам, что спор взял администратор.
func DisputeTaken(d *models.Dispute, admin *models.User) string {
	return fmt.Sprintf("⚖️ Спор по заказу <code>%s</code> принят администратором %s.",
		d.OrderID, mention(admin))
}

// DisputeResolved итог спора.
func DisputeResolved(o *models.Order, admin *models.User, resolution string, accept bool) string {
	result, tail := "Отклонено", "Заказ возвращен в работу."
	if accept {
		result, tail = "Принято", "Заказ отменен, средства будут возвращены заказчику."
	}
	return fmt.Sprintf("⚖️ <b>Спор по заказу %s разрешен!</b>\n\n"+
		"👤 <b>Администратор:</b> %s\n"+
		"📝 <b>Решение:</b> %s\n"+
		"🔹 <b>Результат:</b> %s\n\n%s",
		o.ID, mention(admin), esc(resolution), result, tail)
}

// RatingThanks ответ после оценки.
func RatingThanks(score int) string {
	return fmt.Sprintf("Спасибо за оценку %s! Можете оставить комментарий одним сообщением или пропустить.",
		strings.Repeat("⭐", score))
}

// ExecutorRated уведомление исполнителю о новой оценке.
func ExecutorRated(o *models.Order, r *models.Rating) string {
	text := fmt.Sprintf("⭐ Заказ <code>%s</code> оценен на %d из 5", o.ID, r.Score)
	if r.Comment != nil && *r.Comment != "" {
		text += "\n💬 " + esc(*r.Comment)
	}
	return text
}

// RecentRatings блок последних оценок исполнителя. Пустая строка, если оценок нет.
func RecentRatings(ratings []models.Rating) string {
	if len(ratings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n⭐ <b>Последние оценки</b>\n")
	for _, r := range ratings {
		fmt.Fprintf(&b, "\n%s %d/5", strings.Repeat("⭐", r.Score), r.Score)
		if r.Comment != nil && *r.Comment != "" {
			b.WriteString(" · " + esc(*r.Comment))
		}
	}
	return b.String()
}

// ChatRelay сообщение из переписки по заказу.
func ChatRelay(o *models.Order, from *models.User, text string) string {
	return fmt.Sprintf("💬 <b>Заказ %s</b>, %s:\n\n%s\n\n<i>Ответить:</i> <code>/msg %s текст</code>",
		ShortID(o.ID), mention(from), esc(text), o.ID)
}

// OrderList список заказов.
func OrderList(title string, orders []models.Order) string {
	if len(orders) == 0 {
		return title + "\n\nЗаказов пока нет."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, o := range orders {
		info := typeInfo(o.Type)
		fmt.Fprintf(&b, "\n%s <b>%s</b> · %d руб · %s\n<code>%s</code>\n",
			info.emoji, esc(o.Subject), o.Budget, StatusLabel(o.Status), o.ID)
	}
	return b.String()
}

// OrderDetails подробная карточка для участника заказа.
func OrderDetails(o *models.Order) string {
	info := typeInfo(o.Type)
	return fmt.Sprintf("%s\n\n%s <b>Тип:</b> %s\n📚 <b>Предмет:</b> %s\n📝 <b>Описание:</b>\n%s\n"+
		"⏰ <b>Срок:</b> %s\n💰 <b>Бюджет:</b> %d руб\n🆔 <b>ID:</b> <code>%s</code>",
		StatusLabel(o.Status), info.emoji, info.title, esc(o.Subject), esc(o.Description),
		esc(o.Deadline), o.Budget, o.ID)
}

// Problem текст ошибки ввода для пользователя.
func Problem(message string) string {
	return "⚠️ " + esc(message)
}
