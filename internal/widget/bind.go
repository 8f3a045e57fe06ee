package widget

import (
	"sort"
	"strconv"

	"autoform/internal/orm"
	"autoform/internal/validate"
)

// Validate разбирает вложенные данные запроса по дереву контролов.
// Ошибки ввода собираются по составным путям, соседние поля проверяются
// независимо. Возвращаемая ошибка — только фатальная (конфигурация, хранилище).
func Validate(s *orm.Session, c *Control, raw any) (any, []*validate.FieldError, error) {
	v := &binder{s: s}
	out, _, err := v.control(c, raw, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return out, v.errs, nil
}

type binder struct {
	s    *orm.Session
	errs []*validate.FieldError
}

// control возвращает значение и признак того, что его нужно записать в родителя.
func (b *binder) control(c *Control, raw any, path string) (any, bool, error) {
	if c.ReadOnly {
		return nil, false, nil
	}
	if o, ok := c.Validator.(validate.OneToOne); ok && c.Embedded && o.Skip(raw) {
		return nil, false, nil
	}
	var (
		out any
		ok  = true
		err error
	)
	switch c.Layout {
	case Fields:
		out, ok, err = b.fields(c, asMap(raw), path)
	case Rows:
		out, ok, err = b.rows(c, raw, path)
	default:
		out = raw
	}
	if err != nil || !ok {
		return nil, false, err
	}
	return b.apply(c, out, path)
}

func (b *binder) apply(c *Control, value any, path string) (any, bool, error) {
	if c.Validator == nil {
		return value, true, nil
	}
	out, err := c.Validator.ToInternal(b.s, value)
	if err != nil {
		fe, user := validate.AsFieldError(err)
		if !user {
			return nil, false, err
		}
		b.errs = append(b.errs, &validate.FieldError{Code: fe.Code, Field: path, Message: fe.Message})
		return nil, false, nil
	}
	return out, true, nil
}

func (b *binder) fields(c *Control, m map[string]any, path string) (any, bool, error) {
	kids, err := c.Kids()
	if err != nil {
		return nil, false, err
	}
	out := map[string]any{}
	before := len(b.errs)
	for _, k := range kids {
		if k.ID == "" {
			v, ok, err := b.control(k, m, path)
			if err != nil {
				return nil, false, err
			}
			if sub, isMap := v.(map[string]any); ok && isMap {
				for key, val := range sub {
					out[key] = val
				}
			}
			continue
		}
		v, ok, err := b.control(k, m[k.ID], Path(path, k.ID))
		if err != nil {
			return nil, false, err
		}
		if ok {
			out[k.ID] = v
		}
	}
	return out, len(b.errs) == before, nil
}

func (b *binder) rows(c *Control, raw any, path string) (any, bool, error) {
	out := []any{}
	before := len(b.errs)
	for i, row := range asRows(raw) {
		if c.SkipEmptyRows && !hasValue(row) {
			continue
		}
		v, _, err := b.fields(c, row, Path(path, strconv.Itoa(i)))
		if err != nil {
			return nil, false, err
		}
		out = append(out, v)
	}
	return out, len(b.errs) == before, nil
}

func asMap(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// asRows принимает список карт или карту с числовыми ключами ("0", "1", ...).
func asRows(raw any) []map[string]any {
	switch t := raw.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, el := range t {
			out = append(out, asMap(el))
		}
		return out
	case []map[string]any:
		return t
	case map[string]any:
		type indexed struct {
			i   int
			row map[string]any
		}
		var rows []indexed
		for k, v := range t {
			i, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			rows = append(rows, indexed{i, asMap(v)})
		}
		sort.Slice(rows, func(a, b int) bool { return rows[a].i < rows[b].i })
		out := make([]map[string]any, len(rows))
		for n, r := range rows {
			out[n] = r.row
		}
		return out
	}
	return nil
}

func hasValue(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, el := range t {
			if hasValue(el) {
				return true
			}
		}
		return false
	case []any:
		for _, el := range t {
			if hasValue(el) {
				return true
			}
		}
		return false
	case []string:
		return len(t) > 0
	case string:
		return t != ""
	}
	return v != nil
}
