package validation

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// Ограничения на ввод в диалоге и переписке.
const (
	MinSubjectLength     = 2
	MaxSubjectLength     = 200
	MinDescriptionLength = 5
	MaxDescriptionLength = 4000
	MaxDeadlineLength    = 100
	MaxMessageLength     = 4000
	MaxBudget            = 10_000_000
	MaxResolutionLength  = 2000
)

// ValidateLength проверяет длину строки в символах.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return apperror.Newf(apperror.ErrCodeValidation, "%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return apperror.Newf(apperror.ErrCodeValidation, "%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateFreeText обрезает пробелы и проверяет длину.
func ValidateFreeText(fieldName, value string, min, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperror.Newf(apperror.ErrCodeValidation, "%s не может быть пустым", fieldName)
	}
	if err := ValidateLength(fieldName, value, min, max); err != nil {
		return "", err
	}
	return value, nil
}

// ParseBudget оставляет в тексте только цифры и читает число.
// "1500 руб" -> 1500, "-50" -> 50. Ноль, пустой результат и переполнение отклоняются.
func ParseBudget(text string) (int64, error) {
	var digits strings.Builder
	for _, r := range text {
		if r < utf8.RuneSelf && unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	if digits.Len() == 0 {
		return 0, apperror.New(apperror.ErrCodeValidation, "укажите бюджет числом, например 1500")
	}

	budget, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil || budget > MaxBudget {
		return 0, apperror.Newf(apperror.ErrCodeValidation, "бюджет не может превышать %d", MaxBudget)
	}
	if budget <= 0 {
		return 0, apperror.New(apperror.ErrCodeValidation, "бюджет должен быть больше нуля")
	}

	return budget, nil
}

// FileExtension возвращает расширение в нижнем регистре вместе с точкой.
func FileExtension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ValidateAttachment проверяет расширение и размер документа до скачивания.
func ValidateAttachment(name string, size int64, allowed []string, maxBytes int64) error {
	ext := FileExtension(name)
	if ext == "" || !containsString(allowed, ext) {
		return apperror.Newf(apperror.ErrCodeValidation,
			"недопустимый формат файла, разрешены: %s", strings.Join(allowed, ", "))
	}
	if size <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "файл пустой")
	}
	if size > maxBytes {
		return apperror.Newf(apperror.ErrCodeValidation,
			"файл слишком большой, максимум %d МБ", maxBytes/(1024*1024))
	}
	return nil
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
