package orm

import (
	"fmt"
	"sort"

	"autoform/internal/schema"
)

const (
	stateInProgress = 1
	stateDone       = 2
)

type flushRun struct {
	s     *Session
	state map[*Record]int
}

// Flush записывает накопленные изменения: сначала записи, на которые ссылаются
// внешние ключи, затем сами записи, затем коллекции и строки таблиц связей.
func (s *Session) Flush() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.flushing || len(s.pending) == 0 {
		return nil
	}
	s.flushing = true
	defer func() { s.flushing = false }()

	run := &flushRun{s: s, state: map[*Record]int{}}
	for i := 0; i < len(s.pending); i++ {
		if err := run.record(s.pending[i]); err != nil {
			return err
		}
	}
	s.pending = nil
	s.tracked = map[*Record]bool{}

	// другая сторона связей могла измениться, кэш перечитается лениво
	for _, byKey := range s.identity {
		for _, r := range byKey {
			r.related = map[string]any{}
			r.touched = map[string]bool{}
			r.before = map[string][]*Record{}
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (f *flushRun) record(r *Record) error {
	if f.state[r] != 0 {
		return nil
	}
	f.state[r] = stateInProgress
	s := f.s

	if r.deleted {
		f.state[r] = stateDone
		if r.isNew {
			return nil
		}
		if err := s.tx.Delete(s.ctx, r.e, r.keyRow()); err != nil {
			return fmt.Errorf("delete %s: %w", r.e.Name, err)
		}
		s.forget(r)
		return nil
	}

	touched := sortedKeys(r.touched)

	// 1) родители по локальным внешним ключам
	for _, key := range touched {
		p, _ := r.e.Property(key)
		if p.Relation.Direction != schema.DirManyToOne {
			continue
		}
		var fk any
		if parent, _ := r.related[key].(*Record); parent != nil {
			if err := f.record(parent); err != nil {
				return err
			}
			if parent.isNew {
				return fmt.Errorf("%s.%s: circular dependency between new records", r.e.Name, key)
			}
			id, err := parent.ID()
			if err != nil {
				return err
			}
			fk = id
		}
		r.values[p.Relation.LocalColumn] = fk
		r.dirty[p.Relation.LocalColumn] = true
	}

	// 2) сама запись
	if r.isNew {
		for _, c := range r.e.Columns() {
			if name := c.Column.Name; c.IsDiscriminator() && (r.values[name] == nil || r.values[name] == "") {
				r.values[name] = r.e.Name
			}
		}
		gen, err := s.tx.Insert(s.ctx, r.e, r.values)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.e.Name, err)
		}
		for k, v := range normalizeRow(r.e, gen) {
			r.values[k] = v
		}
		r.isNew = false
		s.register(r)
	} else if len(r.dirty) > 0 {
		values := Row{}
		for col := range r.dirty {
			values[col] = r.values[col]
		}
		if err := s.tx.Update(s.ctx, r.e, r.keyRow(), values); err != nil {
			return fmt.Errorf("update %s: %w", r.e.Name, err)
		}
	}
	r.dirty = map[string]bool{}
	f.state[r] = stateDone

	// 3) коллекции и обратные одиночные связи
	for _, key := range touched {
		p, _ := r.e.Property(key)
		switch p.Relation.Direction {
		case schema.DirOneToMany:
			if err := f.children(r, p); err != nil {
				return err
			}
		case schema.DirManyToMany:
			if err := f.links(r, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func members(v any) []*Record {
	switch t := v.(type) {
	case *Record:
		if t != nil {
			return []*Record{t}
		}
	case []*Record:
		return t
	}
	return nil
}

func diff(before, after []*Record) (removed, kept []*Record) {
	in := map[*Record]bool{}
	for _, m := range after {
		in[m] = true
	}
	for _, m := range before {
		if !in[m] {
			removed = append(removed, m)
		}
	}
	return removed, after
}

func (f *flushRun) children(r *Record, p *schema.Property) error {
	id, err := r.ID()
	if err != nil {
		return err
	}
	col := p.Relation.RemoteColumn
	removed, current := diff(r.before[p.Key], members(r.related[p.Key]))
	for _, m := range removed {
		if err := f.writeBack(m, col, nil); err != nil {
			return err
		}
	}
	for _, m := range current {
		if err := f.writeBack(m, col, id); err != nil {
			return err
		}
	}
	return nil
}

// writeBack выставляет внешний ключ у дочерней записи и сохраняет её.
func (f *flushRun) writeBack(m *Record, col string, val any) error {
	m.values[col] = val
	switch {
	case f.state[m] == stateDone || (f.state[m] == stateInProgress && !m.isNew):
		if err := f.s.tx.Update(f.s.ctx, m.e, m.keyRow(), Row{col: val}); err != nil {
			return fmt.Errorf("update %s: %w", m.e.Name, err)
		}
		return nil
	case f.state[m] == stateInProgress:
		// будет вставлена с этим значением
		return nil
	default:
		m.dirty[col] = true
		return f.record(m)
	}
}

func (f *flushRun) links(r *Record, p *schema.Property) error {
	s := f.s
	jt := *p.Relation.JoinTable
	id, err := r.ID()
	if err != nil {
		return err
	}
	removed, current := diff(r.before[p.Key], members(r.related[p.Key]))
	was := map[*Record]bool{}
	for _, m := range r.before[p.Key] {
		was[m] = true
	}
	for _, m := range removed {
		mid, err := m.ID()
		if err != nil {
			return err
		}
		if err := s.tx.Unlink(s.ctx, jt, id, mid); err != nil {
			return fmt.Errorf("unlink %s: %w", jt.Name, err)
		}
	}
	for _, m := range current {
		if was[m] {
			continue
		}
		if err := f.record(m); err != nil {
			return err
		}
		if m.isNew {
			return fmt.Errorf("%s.%s: circular dependency between new records", r.e.Name, p.Key)
		}
		mid, err := m.ID()
		if err != nil {
			return err
		}
		if err := s.tx.Link(s.ctx, jt, id, mid); err != nil {
			return fmt.Errorf("link %s: %w", jt.Name, err)
		}
	}
	return nil
}
