package dialogue

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/studytips-bot/internal/models"
)

// Step шаг диалога создания заказа.
type Step string

const (
	StepSelectingType       Step = "selecting_type"
	StepEnteringSubject     Step = "entering_subject"
	StepEnteringDescription Step = "entering_description"
	StepEnteringDeadline    Step = "entering_deadline"
	StepEnteringBudget      Step = "entering_budget"
	StepUploadingFile       Step = "uploading_file"
	StepConfirming          Step = "confirming"
)

// InputSteps число шагов ввода между выбором типа и подтверждением.
const InputSteps = 5

var stepOrder = []Step{
	StepSelectingType,
	StepEnteringSubject,
	StepEnteringDescription,
	StepEnteringDeadline,
	StepEnteringBudget,
	StepUploadingFile,
	StepConfirming,
}

// Previous возвращает предыдущий шаг. ok == false для первого шага.
func (s Step) Previous() (Step, bool) {
	for i, step := range stepOrder {
		if step == s && i > 0 {
			return stepOrder[i-1], true
		}
	}
	return "", false
}

// Next возвращает следующий шаг.
func (s Step) Next() (Step, bool) {
	for i, step := range stepOrder {
		if step == s && i < len(stepOrder)-1 {
			return stepOrder[i+1], true
		}
	}
	return "", false
}

// Number порядковый номер шага ввода, от 1 до InputSteps.
func (s Step) Number() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return 0
}

// Session черновик заказа одного диалога.
type Session struct {
	ConversationID int64           `json:"conversation_id"`
	UserID         int64           `json:"user_id"`
	Step           Step            `json:"step"`
	Type           models.WorkType `json:"type,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	Description    string          `json:"description,omitempty"`
	Deadline       string          `json:"deadline,omitempty"`
	Budget         int64           `json:"budget,omitempty"`
	FilePath       *string         `json:"file_path,omitempty"`
	FileName       string          `json:"file_name,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Payload превращает черновик в данные для создания заказа.
func (s *Session) Payload() models.OrderPayload {
	return models.OrderPayload{
		Type:        s.Type,
		Subject:     s.Subject,
		Description: s.Description,
		Deadline:    s.Deadline,
		Budget:      s.Budget,
		FilePath:    s.FilePath,
	}
}

// PromptKind вид одноразового запроса текста у пользователя.
type PromptKind string

const (
	PromptDisputeReason PromptKind = "dispute_reason"
	PromptNewBudget     PromptKind = "new_budget"
	PromptRatingComment PromptKind = "rating_comment"
)

// Prompt ожидание следующего текстового сообщения пользователя,
// например причины спора после нажатия кнопки.
type Prompt struct {
	Kind      PromptKind `json:"kind"`
	OrderID   uuid.UUID  `json:"order_id"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
}
