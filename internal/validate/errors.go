package validate

import (
	"errors"
	"fmt"
)

// FieldError — ошибка проверки одного поля формы.
// Field — составной путь контрола (a:b:c), заполняется при обходе дерева.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Коды ошибок
const (
	ErrRequired     = "required"
	ErrNoMatch      = "norel"
	ErrTypeMismatch = "type_mismatch"
	ErrInvalid      = "invalid"
)

func ferr(code, format string, args ...any) *FieldError {
	return &FieldError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func required() *FieldError { return ferr(ErrRequired, "Enter a value") }

// AsFieldError извлекает FieldError из цепочки ошибок.
func AsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
