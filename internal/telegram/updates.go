package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdatesSource long polling tgbotapi.BotAPI.
type UpdatesSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poll читает обновления long polling до отмены ctx.
// Каждое обновление обрабатывается в своей горутине.
func (h *Handler) Poll(ctx context.Context, src UpdatesSource) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := src.GetUpdatesChan(cfg)

	h.log.Info("long polling started")
	for {
		select {
		case <-ctx.Done():
			src.StopReceivingUpdates()
			h.log.Info("long polling stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.Dispatch(ctx, upd)
		}
	}
}
