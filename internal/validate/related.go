package validate

import (
	"autoform/internal/orm"
	"autoform/internal/schema"
)

// Related — одиночная связь: значение формы — строковый ключ записи Entity.
type Related struct {
	Entity   *schema.Entity
	Required bool
}

func (v Related) ToInternal(s *orm.Session, raw any) (any, error) {
	if IsEmpty(raw) {
		if v.Required {
			return nil, required()
		}
		return nil, nil
	}
	if rec, ok := raw.(*orm.Record); ok && rec.Entity().IsA(v.Entity) {
		return rec, nil
	}
	pk, err := v.Entity.PrimaryKey()
	if err != nil {
		return nil, err
	}
	key, err := pk.Column.Type.Coerce(raw)
	if err != nil || key == nil {
		return nil, noMatch()
	}
	rec, err := s.Query(v.Entity).Get(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, noMatch()
	}
	return rec, nil
}

func (v Related) ToExternal(_ *orm.Session, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	rec, ok := value.(*orm.Record)
	if !ok || rec == nil || !rec.Entity().IsA(v.Entity) {
		return nil, ferr(ErrTypeMismatch, "Expected a %s record, got %T", v.Entity.Name, value)
	}
	id, err := rec.ID()
	if err != nil {
		return nil, err
	}
	return schema.FormatValue(id), nil
}

func noMatch() *FieldError { return ferr(ErrNoMatch, "No match") }

// RelatedItems — коллекция связей. Элементы, не прошедшие проверку,
// молча отбрасываются; ошибка только если итог пуст при Required.
type RelatedItems struct {
	Entity   *schema.Entity
	Required bool
}

func (v RelatedItems) ToInternal(s *orm.Session, raw any) (any, error) {
	item := Related{Entity: v.Entity}
	out := []*orm.Record{}
	for _, el := range asList(raw) {
		rec, err := item.ToInternal(s, el)
		if err != nil {
			if _, user := AsFieldError(err); user {
				continue
			}
			return nil, err
		}
		if r, ok := rec.(*orm.Record); ok && r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 && v.Required {
		return nil, required()
	}
	return out, nil
}

func (v RelatedItems) ToExternal(s *orm.Session, value any) (any, error) {
	item := Related{Entity: v.Entity}
	out := []string{}
	for _, el := range asList(value) {
		ext, err := item.ToExternal(s, el)
		if err != nil {
			return nil, err
		}
		if str, ok := ext.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []*orm.Record:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	default:
		return []any{v}
	}
}

// OneToOne — вложенная подформа: при Required хотя бы одно значение
// во вложенной структуре должно быть непустым. Значение не преобразуется.
type OneToOne struct {
	Required bool
}

func (v OneToOne) ToInternal(_ *orm.Session, raw any) (any, error) {
	if v.Required && !anyTruthy(raw) {
		return nil, required()
	}
	return raw, nil
}

func (OneToOne) ToExternal(_ *orm.Session, value any) (any, error) { return value, nil }

// Skip сообщает, что необязательная подформа оставлена пустой
// и её поля проверять не нужно.
func (v OneToOne) Skip(raw any) bool { return !v.Required && !anyTruthy(raw) }

func anyTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case map[string]any:
		for _, el := range t {
			if anyTruthy(el) {
				return true
			}
		}
		return false
	case []any:
		for _, el := range t {
			if anyTruthy(el) {
				return true
			}
		}
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case *orm.Record:
		return t != nil
	case []*orm.Record:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	return true
}
