package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/models"
)

// API часть tgbotapi.BotAPI, которой пользуется бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot транспорт Telegram: личные сообщения, карточки в канале, ответы на нажатия.
// Все тексты уходят в HTML parse mode.
type Bot struct {
	api    API
	client *http.Client
	log    *logrus.Entry
}

func NewBot(api API) *Bot {
	return &Bot{
		api:    api,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logger.WithComponent("telegram"),
	}
}

// SendDirectMessage отправляет личное сообщение.
func (b *Bot) SendDirectMessage(ctx context.Context, userID int64, text string, kb *models.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup := replyMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send to %d: %w", userID, err)
	}
	return nil
}

// EditMessage заменяет текст и inline-клавиатуру сообщения.
// Ответ "message is not modified" ошибкой не считается.
func (b *Bot) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *models.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = inlineMarkup(kb)

	if _, err := b.api.Request(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("telegram: edit %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// PostOrUpdateChannelMessage редактирует карточку по ref. Новая карточка публикуется,
// только если ref нет или сообщение удалено из канала. Прочие ошибки правки
// возвращаются, чтобы временный сбой не плодил дубликаты.
func (b *Bot) PostOrUpdateChannelMessage(ctx context.Context, channelID int64, ref *int, text string, kb *models.Keyboard) (int, error) {
	if ref != nil {
		err := b.EditMessage(ctx, channelID, *ref, text, kb)
		if err == nil {
			return *ref, nil
		}
		if !isMessageGone(err) {
			return 0, err
		}
		b.log.WithError(err).WithField("message_id", *ref).Warn("channel card is gone, posting new one")
	}

	msg := tgbotapi.NewMessage(channelID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup := inlineMarkup(kb); markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: post to channel %d: %w", channelID, err)
	}
	return sent.MessageID, nil
}

// AnswerCallback снимает "часики" с кнопки. alert показывает текст во всплывающем окне.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := b.api.Request(cb); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// DownloadFile открывает содержимое файла, загруженного пользователем.
func (b *Bot) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram: file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("telegram: download file: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func replyMarkup(kb *models.Keyboard) interface{} {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	if !kb.Reply {
		return *inlineMarkup(kb)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

func inlineMarkup(kb *models.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

func isMessageGone(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "message to edit not found") || strings.Contains(msg, "message can't be edited")
}
