package common

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var ErrInvalidInput = errors.New("invalid input")

// IsUniqueViolation сообщает, что запрос упал на уникальном индексе.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgerrcode.UniqueViolation
	}
	return false
}
