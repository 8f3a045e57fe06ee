package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"autoform/internal/orm"
	"autoform/internal/schema"
)

var typedNames = map[string]schema.ColumnType{
	"int":      schema.Int,
	"float":    schema.Float,
	"bool":     schema.Bool,
	"date":     schema.Date,
	"datetime": schema.DateTime,
	"uuid":     schema.UUID,
}

// IsEmpty — nil, пустая строка (после trim), пустой список или карта.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case *orm.Record:
		return t == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// Required отклоняет пустые значения.
type Required struct{}

func (Required) ToInternal(_ *orm.Session, raw any) (any, error) {
	if IsEmpty(raw) {
		return nil, required()
	}
	return raw, nil
}

func (Required) ToExternal(_ *orm.Session, v any) (any, error) { return v, nil }

// Typed приводит строку формы к типу колонки.
type Typed struct {
	Type     schema.ColumnType
	Required bool
}

func (v Typed) ToInternal(_ *orm.Session, raw any) (any, error) {
	if IsEmpty(raw) {
		if v.Type == schema.Bool {
			// неотмеченный чекбокс не приходит в запросе
			return false, nil
		}
		if v.Required {
			return nil, required()
		}
		return nil, nil
	}
	out, err := v.Type.Coerce(raw)
	if err != nil {
		return nil, ferr(ErrTypeMismatch, "Value %s", err.Error())
	}
	return out, nil
}

func (v Typed) ToExternal(_ *orm.Session, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return schema.FormatValue(value), nil
}

var tags = validator.New()

// Tagged проверяет строку тегом go-playground/validator (email, ip, url).
type Tagged struct {
	Tag      string
	Required bool
}

func (v Tagged) ToInternal(_ *orm.Session, raw any) (any, error) {
	if IsEmpty(raw) {
		if v.Required {
			return nil, required()
		}
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, ferr(ErrTypeMismatch, "Value must be string")
	}
	s = strings.TrimSpace(s)
	if err := tags.Var(s, v.Tag); err != nil {
		return nil, ferr(ErrInvalid, "Value is not a valid %s", v.Tag)
	}
	return s, nil
}

func (Tagged) ToExternal(_ *orm.Session, v any) (any, error) { return v, nil }
