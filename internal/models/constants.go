package models

import (
	"database/sql/driver"
	"fmt"
)

// OrderStatus статус заказа в жизненном цикле.
type OrderStatus string

// Статусы заказа.
const (
	OrderStatusActive      OrderStatus = "active"
	OrderStatusTaken       OrderStatus = "taken"
	OrderStatusInProgress  OrderStatus = "in_progress"
	OrderStatusUnderReview OrderStatus = "under_review"
	OrderStatusCompleted   OrderStatus = "completed"
	OrderStatusCanceled    OrderStatus = "canceled"
	OrderStatusDispute     OrderStatus = "dispute"
)

// orderTransitions единственное место, где описаны допустимые переходы статусов.
var orderTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusActive: {
		OrderStatusTaken:    {},
		OrderStatusCanceled: {},
	},
	OrderStatusTaken: {
		OrderStatusInProgress: {},
		OrderStatusCompleted:  {},
		OrderStatusDispute:    {},
		OrderStatusCanceled:   {},
	},
	OrderStatusInProgress: {
		OrderStatusUnderReview: {},
		OrderStatusCompleted:   {},
		OrderStatusDispute:     {},
		OrderStatusCanceled:    {},
	},
	OrderStatusUnderReview: {
		OrderStatusCompleted: {},
		OrderStatusDispute:   {},
		OrderStatusCanceled:  {},
	},
	OrderStatusDispute: {
		OrderStatusCanceled:   {},
		OrderStatusInProgress: {},
	},
	OrderStatusCompleted: {},
	OrderStatusCanceled:  {},
}

// IsValid проверяет, что статус известен.
func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal сообщает, что из статуса переходов нет.
func (s OrderStatus) IsTerminal() bool {
	allowed, ok := orderTransitions[s]
	return ok && len(allowed) == 0
}

// CanTransitionTo проверяет переход s -> next по таблице переходов.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := orderTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// Scan реализует sql.Scanner и отбрасывает неизвестные значения.
func (s *OrderStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("order status: %w", err)
	}
	status := OrderStatus(raw)
	if !status.IsValid() {
		return fmt.Errorf("order status: неизвестное значение %q", raw)
	}
	*s = status
	return nil
}

// Value реализует driver.Valuer.
func (s OrderStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Role роль пользователя.
type Role string

// Роли пользователей.
const (
	RoleCustomer Role = "customer"
	RoleExecutor Role = "executor"
	RoleAdmin    Role = "admin"
)

// ParseRole превращает строку в роль, для неизвестных значений возвращает ошибку.
func ParseRole(raw string) (Role, error) {
	switch r := Role(raw); r {
	case RoleCustomer, RoleExecutor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("role: неизвестное значение %q", raw)
}

// Scan реализует sql.Scanner.
func (r *Role) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("role: %w", err)
	}
	role, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Value реализует driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if _, err := ParseRole(string(r)); err != nil {
		return nil, err
	}
	return string(r), nil
}

// DisputeStatus статус спора.
type DisputeStatus string

// Статусы спора.
const (
	DisputeStatusOpened     DisputeStatus = "opened"
	DisputeStatusInProgress DisputeStatus = "in_progress"
	DisputeStatusResolved   DisputeStatus = "resolved"
	DisputeStatusRejected   DisputeStatus = "rejected"
)

// IsOpen сообщает, что спор ещё не закрыт.
func (s DisputeStatus) IsOpen() bool {
	return s == DisputeStatusOpened || s == DisputeStatusInProgress
}

func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusOpened, DisputeStatusInProgress, DisputeStatusResolved, DisputeStatusRejected:
		return true
	}
	return false
}

// Scan реализует sql.Scanner и отбрасывает неизвестные значения.
func (s *DisputeStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("dispute status: %w", err)
	}
	status := DisputeStatus(raw)
	if !status.IsValid() {
		return fmt.Errorf("dispute status: неизвестное значение %q", raw)
	}
	*s = status
	return nil
}

// Value реализует driver.Valuer.
func (s DisputeStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("dispute status: неизвестное значение %q", string(s))
	}
	return string(s), nil
}

// WorkType тип работы.
type WorkType string

// Типы работ.
const (
	WorkTypeExam       WorkType = "exam"
	WorkTypeCoursework WorkType = "coursework"
	WorkTypeOther      WorkType = "other"
)

// WorkTypes список типов в порядке показа.
var WorkTypes = []WorkType{WorkTypeExam, WorkTypeCoursework, WorkTypeOther}

// IsValid проверяет тип работы.
func (t WorkType) IsValid() bool {
	switch t {
	case WorkTypeExam, WorkTypeCoursework, WorkTypeOther:
		return true
	}
	return false
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("пустое значение")
	}
	return "", fmt.Errorf("неподдерживаемый тип %T", src)
}
