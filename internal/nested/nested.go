// Package nested переносит вложенные данные формы (карты и списки карт)
// на граф записей сессии: находит связанные записи по ключу, создаёт новые
// и обновляет существующие на месте.
package nested

import (
	"errors"
	"fmt"
	"sort"

	"autoform/internal/orm"
	"autoform/internal/schema"
)

var (
	ErrSurrogateWithKey = errors.New("cannot create a surrogate record with a primary key")
	ErrKeyRequired      = errors.New("cannot create a non-surrogate record without a primary key")
	ErrMixedList        = errors.New("cannot send mixed (mapping and non-mapping) data to a list relation")
	ErrUnknownRelation  = errors.New("nested data for a property that is not a relation")
)

// MergeInto записывает data в r и возвращает r.
// Скаляры и готовые записи присваиваются как есть; карта для связи сливается
// в текущую связанную запись, если в карте нет её ключа, иначе запись ищется
// или создаётся; список карт заменяет коллекцию целиком.
func MergeInto(r *orm.Record, data map[string]any) (*orm.Record, error) {
	e := r.Entity()
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := data[key]
		switch v := value.(type) {
		case map[string]any:
			if err := mergeOne(r, key, v); err != nil {
				return nil, err
			}
		case []map[string]any:
			rows := make([]any, len(v))
			for i, m := range v {
				rows[i] = m
			}
			if err := mergeList(r, key, rows); err != nil {
				return nil, err
			}
		case []any:
			if len(v) > 0 {
				if _, rows := v[0].(map[string]any); rows {
					if err := mergeList(r, key, v); err != nil {
						return nil, err
					}
					continue
				}
			}
			if err := r.Set(key, v); err != nil {
				return nil, err
			}
		default:
			if err := r.Set(key, value); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, key, err)
			}
		}
	}
	return r, nil
}

func relation(r *orm.Record, key string) (*schema.Property, error) {
	p, ok := r.Entity().Property(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", orm.ErrUnknownProperty, r.Entity().Name, key)
	}
	if p.Relation == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, r.Entity().Name, key)
	}
	return p, nil
}

func mergeOne(r *orm.Record, key string, data map[string]any) error {
	p, err := relation(r, key)
	if err != nil {
		return err
	}
	target := p.Target()
	cur, err := r.Related(key)
	if err != nil {
		return err
	}
	if cur != nil && !HasKey(target, data) {
		_, err := MergeInto(cur, data)
		return err
	}
	rec, err := CreateOrUpdate(r.Session(), target, data, true)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", r.Entity().Name, key, err)
	}
	return r.Set(key, rec)
}

func mergeList(r *orm.Record, key string, rows []any) error {
	p, err := relation(r, key)
	if err != nil {
		return err
	}
	out := make([]*orm.Record, 0, len(rows))
	for i, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			return fmt.Errorf("%s.%s[%d]: %w", r.Entity().Name, key, i, ErrMixedList)
		}
		rec, err := CreateOrUpdate(r.Session(), p.Target(), m, true)
		if err != nil {
			return fmt.Errorf("%s.%s[%d]: %w", r.Entity().Name, key, i, err)
		}
		out = append(out, rec)
	}
	return r.Set(key, out)
}

// HasKey — все колонки первичного ключа e есть в data и не пусты.
func HasKey(e *schema.Entity, data map[string]any) bool {
	pks := e.PrimaryKeys()
	if len(pks) == 0 {
		return false
	}
	for _, p := range pks {
		if empty(data[p.Key]) {
			return false
		}
	}
	return true
}

func empty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// CreateOrUpdate находит запись e по ключу из data и сливает в неё data,
// либо создаёт новую. surrogate означает, что ключ назначает хранилище:
// тогда ненайденный ключ — ошибка; без surrogate ошибка — отсутствие ключа.
func CreateOrUpdate(s *orm.Session, e *schema.Entity, data map[string]any, surrogate bool) (*orm.Record, error) {
	var rec *orm.Record
	if HasKey(e, data) {
		where := map[string]any{}
		for _, p := range e.PrimaryKeys() {
			where[p.Key] = data[p.Key]
		}
		var err error
		if pk, perr := e.PrimaryKey(); perr == nil {
			rec, err = s.Query(e).Get(data[pk.Key])
		} else {
			rec, err = s.Query(e).FilterBy(where).First()
		}
		if err != nil {
			return nil, err
		}
		if rec == nil {
			if surrogate {
				return nil, fmt.Errorf("%s: %w", e.Name, ErrSurrogateWithKey)
			}
			rec = s.New(e)
		}
	} else {
		if !surrogate {
			return nil, fmt.Errorf("%s: %w", e.Name, ErrKeyRequired)
		}
		rec = s.New(e)
		stripped := make(map[string]any, len(data))
		for k, v := range data {
			stripped[k] = v
		}
		for _, p := range e.PrimaryKeys() {
			if empty(stripped[p.Key]) {
				delete(stripped, p.Key)
			}
		}
		data = stripped
	}
	return MergeInto(rec, data)
}
