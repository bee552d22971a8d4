package dialogue

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
	"github.com/ignatzorin/studytips-bot/internal/validation"
)

// ErrNoSession диалог не начат или истёк.
var ErrNoSession = apperror.New(apperror.ErrCodeNotFound, "время заполнения заказа истекло, начните заново")

// OrderCreator создаёт заказ по заполненному черновику.
type OrderCreator interface {
	CheckQuota(ctx context.Context, clientID int64) error
	CreateOrder(ctx context.Context, payload models.OrderPayload, clientID int64) (*models.Order, error)
}

// AttachmentStore сохраняет вложения.
type AttachmentStore interface {
	Save(ctx context.Context, userID int64, originalName string, r io.Reader) (string, int64, error)
	Delete(ctx context.Context, relativePath string) error
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Document входящий документ. Open вызывается только после проверки имени и размера.
type Document struct {
	Name string
	Size int64
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// Reply результат обработки ввода.
type Reply struct {
	// Session текущее состояние. nil, если диалог завершён.
	Session *Session
	// Problem ошибка ввода, состояние не изменилось.
	Problem error
	// Order создан после подтверждения.
	Order *models.Order
	// Done диалог закончен: заказ создан, отменён или не может быть продолжен.
	Done bool
}

// Config ограничения на вложения.
type Config struct {
	AllowedExtensions []string
	MaxFileBytes      int64
}

// Dialogue конечный автомат создания заказа поверх Store.
type Dialogue struct {
	store       Store
	orders      OrderCreator
	attachments AttachmentStore
	cfg         Config
	log         *logrus.Entry
	now         func() time.Time
}

func New(store Store, orders OrderCreator, attachments AttachmentStore, cfg Config) *Dialogue {
	return &Dialogue{
		store:       store,
		orders:      orders,
		attachments: attachments,
		cfg:         cfg,
		log:         logger.WithComponent("dialogue"),
		now:         time.Now,
	}
}

func sessionKey(conversationID int64) string {
	return "order:" + strconv.FormatInt(conversationID, 10)
}

func promptKey(conversationID int64) string {
	return "prompt:" + strconv.FormatInt(conversationID, 10)
}

// Start начинает новый черновик. Если лимит активных заказов исчерпан,
// сессия не создаётся и возвращается Problem.
func (d *Dialogue) Start(ctx context.Context, conversationID, userID int64) (Reply, error) {
	if err := d.orders.CheckQuota(ctx, userID); err != nil {
		if apperror.IsQuotaExceeded(err) {
			return Reply{Problem: err, Done: true}, nil
		}
		return Reply{}, err
	}

	s := &Session{
		ConversationID: conversationID,
		UserID:         userID,
		Step:           StepSelectingType,
	}
	if err := d.save(ctx, s); err != nil {
		return Reply{}, err
	}
	return Reply{Session: s}, nil
}

// Active возвращает текущий черновик или nil.
func (d *Dialogue) Active(ctx context.Context, conversationID int64) (*Session, error) {
	var s Session
	ok, err := d.store.Get(ctx, sessionKey(conversationID), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// SelectType обрабатывает нажатие кнопки типа работы.
func (d *Dialogue) SelectType(ctx context.Context, conversationID int64, t models.WorkType) (Reply, error) {
	return d.update(ctx, conversationID, func(s *Session) error {
		if s.Step != StepSelectingType {
			return wrongStep(s.Step)
		}
		if !t.IsValid() {
			return apperror.New(apperror.ErrCodeValidation, "выберите тип работы кнопкой")
		}
		s.Type = t
		s.Step = StepEnteringSubject
		return nil
	})
}

// HandleText обрабатывает текст на шагах ввода предмета, описания, срока и бюджета.
func (d *Dialogue) HandleText(ctx context.Context, conversationID int64, text string) (Reply, error) {
	return d.update(ctx, conversationID, func(s *Session) error {
		switch s.Step {
		case StepEnteringSubject:
			v, err := validation.ValidateFreeText("Предмет", text, validation.MinSubjectLength, validation.MaxSubjectLength)
			if err != nil {
				return err
			}
			s.Subject = v
		case StepEnteringDescription:
			v, err := validation.ValidateFreeText("Описание", text, validation.MinDescriptionLength, validation.MaxDescriptionLength)
			if err != nil {
				return err
			}
			s.Description = v
		case StepEnteringDeadline:
			v, err := validation.ValidateFreeText("Срок", text, 1, validation.MaxDeadlineLength)
			if err != nil {
				return err
			}
			s.Deadline = v
		case StepEnteringBudget:
			budget, err := validation.ParseBudget(text)
			if err != nil {
				return err
			}
			s.Budget = budget
		case StepUploadingFile:
			return apperror.New(apperror.ErrCodeValidation, "пришлите файл документом или нажмите «Пропустить»")
		default:
			return wrongStep(s.Step)
		}

		s.Step, _ = s.Step.Next()
		return nil
	})
}

// HandleDocument принимает файл с заданием на шаге загрузки.
func (d *Dialogue) HandleDocument(ctx context.Context, conversationID int64, doc Document) (Reply, error) {
	return d.update(ctx, conversationID, func(s *Session) error {
		if s.Step != StepUploadingFile {
			return apperror.New(apperror.ErrCodeValidation, "сейчас файл не нужен")
		}
		if err := validation.ValidateAttachment(doc.Name, doc.Size, d.cfg.AllowedExtensions, d.cfg.MaxFileBytes); err != nil {
			return err
		}

		body, err := doc.Open(ctx)
		if err != nil {
			return fmt.Errorf("dialogue: скачивание файла: %w", err)
		}
		defer body.Close()

		path, _, err := d.attachments.Save(ctx, s.UserID, doc.Name, body)
		if err != nil {
			return err
		}

		d.dropAttachment(ctx, s)
		s.FilePath = &path
		s.FileName = doc.Name
		s.Step = StepConfirming
		return nil
	})
}

// Skip пропускает загрузку файла. Ранее загруженный файл удаляется.
func (d *Dialogue) Skip(ctx context.Context, conversationID int64) (Reply, error) {
	return d.update(ctx, conversationID, func(s *Session) error {
		if s.Step != StepUploadingFile {
			return wrongStep(s.Step)
		}
		d.dropAttachment(ctx, s)
		s.Step = StepConfirming
		return nil
	})
}

// Back возвращает на предыдущий шаг, введённые данные сохраняются.
// С первого шага Back завершает диалог.
func (d *Dialogue) Back(ctx context.Context, conversationID int64) (Reply, error) {
	s, err := d.load(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}

	prev, ok := s.Step.Previous()
	if !ok {
		return d.Cancel(ctx, conversationID)
	}

	s.Step = prev
	if err := d.save(ctx, s); err != nil {
		return Reply{}, err
	}
	return Reply{Session: s}, nil
}

// Edit с экрана подтверждения возвращает к выбору типа, данные сохраняются.
func (d *Dialogue) Edit(ctx context.Context, conversationID int64) (Reply, error) {
	return d.update(ctx, conversationID, func(s *Session) error {
		if s.Step != StepConfirming {
			return wrongStep(s.Step)
		}
		s.Step = StepSelectingType
		return nil
	})
}

// Confirm создаёт заказ и удаляет черновик.
// При исчерпанном лимите черновик тоже удаляется. Прочие ошибки оставляют
// черновик, чтобы пользователь мог повторить.
func (d *Dialogue) Confirm(ctx context.Context, conversationID int64) (Reply, error) {
	// Черновик забирается до создания заказа: повторное нажатие кнопки
	// получит ErrNoSession, а не второй заказ.
	var s Session
	ok, err := d.store.Take(ctx, sessionKey(conversationID), &s)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{}, ErrNoSession
	}
	if s.Step != StepConfirming {
		if err := d.store.Set(ctx, sessionKey(conversationID), &s); err != nil {
			return Reply{}, err
		}
		return Reply{Session: &s, Problem: wrongStep(s.Step)}, nil
	}

	order, err := d.orders.CreateOrder(ctx, s.Payload(), s.UserID)
	if err != nil {
		if apperror.IsQuotaExceeded(err) || apperror.IsValidation(err) {
			d.dropAttachment(ctx, &s)
			return Reply{Problem: err, Done: true}, nil
		}
		if restoreErr := d.save(ctx, &s); restoreErr != nil {
			d.log.WithError(restoreErr).Warn("failed to restore session")
		}
		return Reply{}, err
	}

	d.log.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"client_id": s.UserID,
	}).Info("order created from dialogue")

	return Reply{Order: order, Done: true}, nil
}

// Cancel отменяет черновик.
func (d *Dialogue) Cancel(ctx context.Context, conversationID int64) (Reply, error) {
	s, err := d.Active(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}
	if s != nil {
		d.dropAttachment(ctx, s)
	}
	if err := d.store.Delete(ctx, sessionKey(conversationID)); err != nil {
		return Reply{}, err
	}
	return Reply{Done: true}, nil
}

// AwaitInput запоминает, что следующий текст пользователя относится к prompt.
func (d *Dialogue) AwaitInput(ctx context.Context, conversationID int64, p Prompt) error {
	p.CreatedAt = d.now().UTC()
	return d.store.Set(ctx, promptKey(conversationID), p)
}

// TakePrompt забирает ожидание ввода, если оно есть.
func (d *Dialogue) TakePrompt(ctx context.Context, conversationID int64) (*Prompt, error) {
	var p Prompt
	ok, err := d.store.Take(ctx, promptKey(conversationID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// update загружает черновик, применяет fn и сохраняет результат.
// Ошибка проверки ввода возвращается в Reply.Problem без изменения состояния.
func (d *Dialogue) update(ctx context.Context, conversationID int64, fn func(*Session) error) (Reply, error) {
	s, err := d.load(ctx, conversationID)
	if err != nil {
		return Reply{}, err
	}

	draft := *s
	if err := fn(&draft); err != nil {
		if isInputProblem(err) {
			return Reply{Session: s, Problem: err}, nil
		}
		return Reply{}, err
	}

	if err := d.save(ctx, &draft); err != nil {
		return Reply{}, err
	}
	return Reply{Session: &draft}, nil
}

func (d *Dialogue) load(ctx context.Context, conversationID int64) (*Session, error) {
	s, err := d.Active(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

func (d *Dialogue) save(ctx context.Context, s *Session) error {
	s.UpdatedAt = d.now().UTC()
	return d.store.Set(ctx, sessionKey(s.ConversationID), s)
}

func (d *Dialogue) dropAttachment(ctx context.Context, s *Session) {
	if s.FilePath == nil {
		return
	}
	if err := d.attachments.Delete(ctx, *s.FilePath); err != nil {
		d.log.WithError(err).WithField("path", *s.FilePath).Warn("failed to delete attachment")
	}
	s.FilePath = nil
	s.FileName = ""
}

func wrongStep(step Step) error {
	if step == StepSelectingType || step == StepConfirming {
		return apperror.New(apperror.ErrCodeValidation, "воспользуйтесь кнопками под сообщением")
	}
	return apperror.New(apperror.ErrCodeValidation, "сейчас ожидается другой ввод")
}

func isInputProblem(err error) bool {
	return apperror.IsValidation(err)
}
