package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/goroutine"
	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

const sendTimeout = 15 * time.Second

// Runner запускает доставку. По умолчанию goroutine.SafeGo.
type Runner func(fn func())

// Dispatcher единственная точка отправки уведомлений. Доставка best-effort:
// ошибка или panic для одного получателя логируется и не мешает остальным.
type Dispatcher struct {
	notifier  Notifier
	publisher EventPublisher
	run       Runner
	cards     *goroutine.KeyedRunner[string]
	recovery  *goroutine.RecoveryHandler
	log       *logrus.Entry
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithRunner подменяет способ запуска доставки. В тестах удобно выполнять синхронно.
func WithRunner(r Runner) Option {
	return func(d *Dispatcher) { d.run = r }
}

// WithPublisher подключает ленту событий.
func WithPublisher(p EventPublisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// Sync выполняет доставку в текущей горутине.
func Sync(fn func()) { fn() }

func NewDispatcher(n Notifier, opts ...Option) *Dispatcher {
	log := logger.WithComponent("notify")
	d := &Dispatcher{
		notifier: n,
		run:      goroutine.SafeGo,
		recovery: goroutine.NewRecoveryHandler(log),
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cards = goroutine.NewKeyedRunner[string](d.run)
	return d
}

// Send доставляет сообщения после завершения операции. Отмена ctx вызывающего
// не прерывает доставку.
func (d *Dispatcher) Send(ctx context.Context, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.run(func() {
		for _, m := range msgs {
			d.recovery.Run(func() { d.deliver(ctx, m) })
		}
	})
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := d.notifier.SendDirectMessage(ctx, m.UserID, m.Text, m.Keyboard); err != nil {
		d.log.WithError(apperror.Wrap(err, apperror.ErrCodeNotificationFailed, "личное сообщение не доставлено")).
			WithField("user_id", m.UserID).
			Warn("notification dropped")
	}
}

// CardContent содержимое карточки на момент отправки.
type CardContent struct {
	// Ref id уже опубликованного сообщения, nil для новой карточки.
	Ref      *int
	Text     string
	Keyboard *models.Keyboard
}

// ChannelCard карточка заказа в канале администраторов.
type ChannelCard struct {
	ChannelID int64
	// Key карточки. Обновления с одним ключом выполняются строго по очереди.
	Key string
	// Render собирает содержимое непосредственно перед отправкой, внутри очереди ключа.
	Render func(ctx context.Context) (CardContent, error)
	// OnPosted вызывается с id сообщения после успешной публикации, до следующего обновления ключа.
	OnPosted func(ctx context.Context, messageID int)
}

// PostCard публикует или обновляет карточку заказа в канале. Render, отправка и
// OnPosted одного ключа не пересекаются с другими обновлениями того же ключа,
// поэтому карточка отражает последнее состояние и не дублируется.
func (d *Dispatcher) PostCard(ctx context.Context, card ChannelCard) {
	if card.ChannelID == 0 || card.Render == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.cards.Go(card.Key, func() {
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		content, err := card.Render(ctx)
		if err != nil {
			d.log.WithError(err).WithField("card", card.Key).Warn("channel card skipped")
			return
		}

		id, err := d.notifier.PostOrUpdateChannelMessage(ctx, card.ChannelID, content.Ref, content.Text, content.Keyboard)
		if err != nil {
			d.log.WithError(apperror.Wrap(err, apperror.ErrCodeNotificationFailed, "карточка в канале не обновлена")).
				WithField("channel_id", card.ChannelID).
				Warn("channel card dropped")
			return
		}
		if card.OnPosted != nil {
			card.OnPosted(ctx, id)
		}
	})
}

// Publish отправляет событие в ленту, если она подключена.
func (d *Dispatcher) Publish(ev Event) {
	if d.publisher == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	d.recovery.Run(func() { d.publisher.Publish(ev) })
}
