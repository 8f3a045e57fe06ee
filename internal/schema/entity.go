package schema

import "strings"

// Column описывает колонку хранения.
type Column struct {
	Name          string
	Type          ColumnType
	Nullable      bool
	PrimaryKey    bool
	Discriminator bool
	Unique        bool
	// References — имя сущности, на которую указывает внешний ключ (если есть).
	References string
}

// JoinTable — таблица связей many-to-many.
// Local ссылается на первичный ключ владельца, Remote — на ключ цели.
type JoinTable struct {
	Name   string
	Local  string
	Remote string
}

// Relation описывает связь с другой сущностью.
type Relation struct {
	Target    string
	Direction Direction
	UseList   bool
	// LocalColumn — внешний ключ у владельца (DirManyToOne).
	LocalColumn string
	// RemoteColumn — внешний ключ у цели (DirOneToMany).
	RemoteColumn string
	JoinTable    *JoinTable
	Backref      string
	// BackrefList — является ли обратное свойство коллекцией.
	BackrefList bool

	target  *Entity
	reverse []*Property
}

// Property — одно свойство сущности: колонка или связь.
type Property struct {
	Key           string
	Column        *Column
	Relation      *Relation
	CreationOrder int

	owner *Entity
}

func (p *Property) Owner() *Entity     { return p.owner }
func (p *Property) IsRelation() bool   { return p.Relation != nil }
func (p *Property) IsPrimaryKey() bool { return p.Column != nil && p.Column.PrimaryKey }

// IsDiscriminator — колонка полиморфного дискриминатора.
func (p *Property) IsDiscriminator() bool { return p.Column != nil && p.Column.Discriminator }

// Target — сущность, на которую указывает связь.
func (p *Property) Target() *Entity {
	if p.Relation == nil {
		return nil
	}
	return p.Relation.target
}

// ReverseProperties — свойства цели, указывающие обратно на владельца.
func (p *Property) ReverseProperties() []*Property {
	if p.Relation == nil {
		return nil
	}
	return append([]*Property(nil), p.Relation.reverse...)
}

// LocalSide — имя локальной колонки соединения: внешний ключ для many-to-one,
// иначе первичный ключ владельца.
func (p *Property) LocalSide() string {
	if p.Relation == nil {
		if p.Column != nil {
			return p.Column.Name
		}
		return p.Key
	}
	if p.Relation.Direction == DirManyToOne {
		return p.Relation.LocalColumn
	}
	if p.owner != nil {
		if pks := p.owner.PrimaryKeys(); len(pks) > 0 {
			return pks[0].Column.Name
		}
	}
	return ""
}

func (p *Property) clone(owner *Entity) *Property {
	cp := &Property{Key: p.Key, CreationOrder: p.CreationOrder, owner: owner}
	if p.Column != nil {
		c := *p.Column
		cp.Column = &c
	}
	if p.Relation != nil {
		r := *p.Relation
		r.target = nil
		r.reverse = nil
		if p.Relation.JoinTable != nil {
			jt := *p.Relation.JoinTable
			r.JoinTable = &jt
		}
		cp.Relation = &r
	}
	return cp
}

// Entity — сущность с упорядоченным набором свойств.
type Entity struct {
	Name        string
	Module      string
	Table       string
	Base        string
	LabelColumn string

	props  []*Property
	byKey  map[string]*Property
	config ConfigMap
	base   *Entity
}

// FQN — "module.Name" (или просто Name без модуля).
func (e *Entity) FQN() string {
	if e.Module == "" {
		return e.Name
	}
	return e.Module + "." + e.Name
}

// Properties возвращает свойства в порядке объявления.
func (e *Entity) Properties() []*Property { return append([]*Property(nil), e.props...) }

func (e *Entity) Property(key string) (*Property, bool) {
	p, ok := e.byKey[key]
	return p, ok
}

// ColumnProperty ищет свойство-колонку по имени колонки.
func (e *Entity) ColumnProperty(name string) (*Property, bool) {
	if p, ok := e.byKey[name]; ok && p.Column != nil {
		return p, true
	}
	for _, p := range e.props {
		if p.Column != nil && p.Column.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Columns — только свойства-колонки, в порядке объявления.
func (e *Entity) Columns() []*Property {
	var out []*Property
	for _, p := range e.props {
		if p.Column != nil {
			out = append(out, p)
		}
	}
	return out
}

func (e *Entity) PrimaryKeys() []*Property {
	var out []*Property
	for _, p := range e.props {
		if p.IsPrimaryKey() {
			out = append(out, p)
		}
	}
	return out
}

// PrimaryKey возвращает единственный первичный ключ.
// Составные ключи не поддерживаются там, где нужен один ключ.
func (e *Entity) PrimaryKey() (*Property, error) {
	pks := e.PrimaryKeys()
	switch len(pks) {
	case 1:
		return pks[0], nil
	case 0:
		return nil, configErr(e.Name, "", "entity has no primary key")
	default:
		names := make([]string, 0, len(pks))
		for _, p := range pks {
			names = append(names, p.Key)
		}
		return nil, configErr(e.Name, "", "composite primary key (%s) is not supported here", strings.Join(names, ", "))
	}
}

// Config — объединённая карта настроек полей (с учётом базовых сущностей).
func (e *Entity) Config() ConfigMap { return e.config }

// BaseEntity — родительская сущность (или nil).
func (e *Entity) BaseEntity() *Entity { return e.base }

// IsA — e совпадает с other или наследуется от неё.
func (e *Entity) IsA(other *Entity) bool {
	for cur := e; cur != nil; cur = cur.base {
		if cur == other {
			return true
		}
	}
	return false
}
