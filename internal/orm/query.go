package orm

import (
	"fmt"
	"sort"

	"autoform/internal/schema"
)

// Query — выборка записей одной сущности. Перед выполнением сессия сбрасывает изменения.
type Query struct {
	s     *Session
	e     *schema.Entity
	where Row
	err   error
}

func (s *Session) Query(e *schema.Entity) *Query {
	return &Query{s: s, e: e, where: Row{}}
}

func (q *Query) clone() *Query {
	w := make(Row, len(q.where))
	for k, v := range q.where {
		w[k] = v
	}
	return &Query{s: q.s, e: q.e, where: w, err: q.err}
}

// Filter добавляет условие равенства. key — колонка или many-to-one связь
// (тогда значение — *Record или nil).
func (q *Query) Filter(key string, v any) *Query {
	out := q.clone()
	if out.err != nil {
		return out
	}
	p, ok := q.e.Property(key)
	if !ok {
		out.err = fmt.Errorf("%w: %s.%s", ErrUnknownProperty, q.e.Name, key)
		return out
	}
	if p.Relation != nil {
		if p.Relation.Direction != schema.DirManyToOne {
			out.err = fmt.Errorf("%s.%s: only many-to-one relations can be filtered", q.e.Name, key)
			return out
		}
		var fk any
		if rec, ok := v.(*Record); ok && rec != nil {
			id, err := rec.ID()
			if err != nil {
				out.err = err
				return out
			}
			fk = id
		} else if v != nil {
			out.err = fmt.Errorf("%w: filter %s.%s expects a record", ErrTypeMismatch, q.e.Name, key)
			return out
		}
		out.where[p.Relation.LocalColumn] = fk
		return out
	}
	val, err := p.Column.Type.Coerce(v)
	if err != nil {
		out.err = fmt.Errorf("%w: filter %s.%s %v", ErrTypeMismatch, q.e.Name, key, err)
		return out
	}
	out.where[p.Column.Name] = val
	return out
}

// FilterBy — Filter для каждого ключа карты.
func (q *Query) FilterBy(values map[string]any) *Query {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := q
	for _, k := range keys {
		out = out.Filter(k, values[k])
	}
	return out
}

// Get ищет запись по значению единственного первичного ключа; не нашли — nil, nil.
func (q *Query) Get(pk any) (*Record, error) {
	if q.err != nil {
		return nil, q.err
	}
	p, err := q.e.PrimaryKey()
	if err != nil {
		return nil, err
	}
	val, err := p.Column.Type.Coerce(pk)
	if err != nil {
		return nil, fmt.Errorf("%w: key of %s %v", ErrTypeMismatch, q.e.Name, err)
	}
	if val == nil {
		return nil, nil
	}
	if r := q.s.lookup(q.e, Row{p.Column.Name: val}); r != nil {
		if r.deleted {
			return nil, nil
		}
		return r, nil
	}
	return q.Filter(p.Key, val).First()
}

// All возвращает все записи, подходящие под условия.
func (q *Query) All() ([]*Record, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.s.closed {
		return nil, ErrSessionClosed
	}
	if err := q.s.Flush(); err != nil {
		return nil, err
	}
	rows, err := q.s.tx.Select(q.s.ctx, q.e, q.where)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.e.Name, err)
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		r := q.s.materialize(q.e, normalizeRow(q.e, row))
		if !r.deleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// First — первая подходящая запись или nil.
func (q *Query) First() (*Record, error) {
	all, err := q.All()
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (q *Query) Count() (int, error) {
	all, err := q.All()
	return len(all), err
}

// normalizeRow приводит значения из хранилища к типам колонок.
func normalizeRow(e *schema.Entity, row Row) Row {
	out := make(Row, len(row))
	for _, p := range e.Columns() {
		v, ok := row[p.Column.Name]
		if !ok {
			continue
		}
		if c, err := p.Column.Type.Coerce(v); err == nil {
			v = c
		}
		out[p.Column.Name] = v
	}
	return out
}
