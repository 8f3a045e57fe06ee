package orm

import (
	"fmt"

	"autoform/internal/schema"
)

// Record — строка сущности в сессии. Связи загружаются лениво
// и записываются в хранилище при flush.
type Record struct {
	s      *Session
	e      *schema.Entity
	values Row
	dirty  map[string]bool

	related map[string]any       // загруженные/назначенные связи: *Record, []*Record или nil
	touched map[string]bool      // связи, изменённые через Set
	before  map[string][]*Record // состав коллекции на момент загрузки

	isNew   bool
	deleted bool
}

func newRecord(s *Session, e *schema.Entity, values Row) *Record {
	return &Record{
		s:       s,
		e:       e,
		values:  values,
		dirty:   map[string]bool{},
		related: map[string]any{},
		touched: map[string]bool{},
		before:  map[string][]*Record{},
	}
}

func (r *Record) Entity() *schema.Entity { return r.e }
func (r *Record) IsNew() bool            { return r.isNew }
func (r *Record) Session() *Session      { return r.s }

// Values — копия значений колонок.
func (r *Record) Values() Row {
	out := make(Row, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// ID — значение единственного первичного ключа (nil у ещё не вставленной записи
// с суррогатным ключом). Для составного ключа — ошибка конфигурации.
func (r *Record) ID() (any, error) {
	pk, err := r.e.PrimaryKey()
	if err != nil {
		return nil, err
	}
	return r.values[pk.Column.Name], nil
}

func (r *Record) keyRow() Row {
	key := Row{}
	for _, p := range r.e.PrimaryKeys() {
		key[p.Column.Name] = r.values[p.Column.Name]
	}
	return key
}

// String — подпись записи: колонка-метка, иначе первая строковая колонка, иначе ключ.
func (r *Record) String() string {
	if r.e.LabelColumn != "" {
		if v, ok := r.values[r.e.LabelColumn]; ok && v != nil {
			return schema.FormatValue(v)
		}
	}
	for _, p := range r.e.Columns() {
		if p.IsPrimaryKey() || (p.Column.Type != schema.String && p.Column.Type != schema.Text) {
			continue
		}
		if v, ok := r.values[p.Column.Name].(string); ok && v != "" {
			return v
		}
	}
	id, _ := r.ID()
	return fmt.Sprintf("%s #%s", r.e.Name, schema.FormatValue(id))
}

// Get возвращает значение колонки или связанную запись/коллекцию.
// Одиночная связь без значения — nil, коллекция — []*Record.
func (r *Record) Get(key string) (any, error) {
	p, ok := r.e.Property(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, r.e.Name, key)
	}
	if p.Column != nil {
		return r.values[p.Column.Name], nil
	}
	if v, ok := r.related[key]; ok {
		return v, nil
	}
	v, err := r.load(p)
	if err != nil {
		return nil, err
	}
	r.related[key] = v
	if list, ok := v.([]*Record); ok {
		r.before[key] = append([]*Record(nil), list...)
	} else if one, ok := v.(*Record); ok {
		r.before[key] = []*Record{one}
	} else {
		r.before[key] = nil
	}
	return v, nil
}

// Related — Get для одиночной связи.
func (r *Record) Related(key string) (*Record, error) {
	v, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	one, _ := v.(*Record)
	return one, nil
}

// Collection — Get для коллекции.
func (r *Record) Collection(key string) ([]*Record, error) {
	v, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	list, _ := v.([]*Record)
	return list, nil
}

func (r *Record) load(p *schema.Property) (any, error) {
	if r.s.closed {
		return nil, ErrSessionClosed
	}
	rel := p.Relation
	target := p.Target()
	switch rel.Direction {
	case schema.DirManyToOne:
		fk := r.values[rel.LocalColumn]
		if fk == nil {
			return nil, nil
		}
		one, err := r.s.Query(target).Get(fk)
		if err != nil || one == nil {
			return nil, err
		}
		return one, nil
	case schema.DirOneToMany:
		var list []*Record
		if !r.isNew {
			id, err := r.ID()
			if err != nil {
				return nil, err
			}
			if list, err = r.s.Query(target).Filter(rel.RemoteColumn, id).All(); err != nil {
				return nil, err
			}
		}
		if !rel.UseList {
			if len(list) == 0 {
				return nil, nil
			}
			return list[0], nil
		}
		if list == nil {
			list = []*Record{}
		}
		return list, nil
	case schema.DirManyToMany:
		list := []*Record{}
		if r.isNew {
			return list, nil
		}
		if err := r.s.Flush(); err != nil {
			return nil, err
		}
		id, err := r.ID()
		if err != nil {
			return nil, err
		}
		ids, err := r.s.tx.Linked(r.s.ctx, *rel.JoinTable, id)
		if err != nil {
			return nil, err
		}
		for _, tid := range ids {
			one, err := r.s.Query(target).Get(tid)
			if err != nil {
				return nil, err
			}
			if one != nil {
				list = append(list, one)
			}
		}
		return list, nil
	}
	return nil, fmt.Errorf("%s.%s: unsupported relation direction %s", r.e.Name, p.Key, rel.Direction)
}

// Set присваивает значение колонке или связи.
// Одиночной связи передаётся *Record или nil, коллекции — []*Record (или []any из *Record).
func (r *Record) Set(key string, v any) error {
	if r.s.closed {
		return ErrSessionClosed
	}
	p, ok := r.e.Property(key)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownProperty, r.e.Name, key)
	}
	if p.Column != nil {
		return r.setColumn(p, v)
	}
	target := p.Target()
	single := p.Relation.Direction == schema.DirManyToOne ||
		(p.Relation.Direction == schema.DirOneToMany && !p.Relation.UseList)

	// зафиксировать исходное состояние для вычисления разницы при flush
	if _, loaded := r.related[key]; !loaded {
		if _, err := r.Get(key); err != nil {
			return err
		}
	}

	if single {
		var one *Record
		switch t := v.(type) {
		case nil:
		case *Record:
			one = t
		default:
			return fmt.Errorf("%w: %s.%s expects a %s record, got %T", ErrTypeMismatch, r.e.Name, key, target.Name, v)
		}
		if one != nil && !one.e.IsA(target) {
			return fmt.Errorf("%w: %s.%s expects a %s record, got %s", ErrTypeMismatch, r.e.Name, key, target.Name, one.e.Name)
		}
		if one == nil {
			r.related[key] = nil
		} else {
			r.related[key] = one
		}
	} else {
		list, err := toRecords(v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", r.e.Name, key, err)
		}
		for _, m := range list {
			if !m.e.IsA(target) {
				return fmt.Errorf("%w: %s.%s expects %s records, got %s", ErrTypeMismatch, r.e.Name, key, target.Name, m.e.Name)
			}
		}
		r.related[key] = list
	}
	r.touched[key] = true
	r.s.track(r)
	return nil
}

func (r *Record) setColumn(p *schema.Property, v any) error {
	val, err := p.Column.Type.Coerce(v)
	if err != nil {
		return fmt.Errorf("%w: %s.%s %v", ErrTypeMismatch, r.e.Name, p.Key, err)
	}
	name := p.Column.Name
	if p.Column.PrimaryKey && !r.isNew {
		if schema.FormatValue(r.values[name]) == schema.FormatValue(val) {
			return nil
		}
		return fmt.Errorf("%s.%s: primary key of a persisted record cannot change", r.e.Name, p.Key)
	}
	r.values[name] = val
	r.dirty[name] = true
	r.s.track(r)
	return nil
}

func toRecords(v any) ([]*Record, error) {
	switch t := v.(type) {
	case nil:
		return []*Record{}, nil
	case []*Record:
		return append([]*Record{}, t...), nil
	case []any:
		out := make([]*Record, 0, len(t))
		for _, it := range t {
			rec, ok := it.(*Record)
			if !ok {
				return nil, fmt.Errorf("%w: collection element %T", ErrTypeMismatch, it)
			}
			out = append(out, rec)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected a collection, got %T", ErrTypeMismatch, v)
}
