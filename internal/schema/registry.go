package schema

import (
	"fmt"
	"strings"
	"sync"
)

// Registry собирает объявления сущностей и один раз превращает их
// в неизменяемые Entity (Finalize).
type Registry struct {
	mu        sync.RWMutex
	builders  []*EntityBuilder
	entities  map[string]*Entity // FQN -> сущность
	order     []*Entity
	seq       int
	finalized bool
}

func NewRegistry() *Registry {
	return &Registry{entities: map[string]*Entity{}}
}

func (r *Registry) nextOrder() int {
	r.seq++
	return r.seq
}

// FieldOption настраивает объявление колонки или связи.
type FieldOption func(*fieldDecl)

type fieldDecl struct {
	key      string
	column   *Column
	relation *Relation
	notNull  bool
	cfg      []ConfigOption
	hasCfg   bool
	order    int
}

type configDecl struct {
	key   string
	opts  []ConfigOption
	merge bool // поверх уже объявленных настроек поля
}

// PrimaryKey помечает колонку первичным ключом (и NOT NULL).
func PrimaryKey() FieldOption {
	return func(d *fieldDecl) {
		if d.column != nil {
			d.column.PrimaryKey = true
			d.column.Nullable = false
		}
	}
}

// NotNull: для колонки — NOT NULL; для many-to-one — обязательный внешний ключ.
func NotNull() FieldOption {
	return func(d *fieldDecl) {
		d.notNull = true
		if d.column != nil {
			d.column.Nullable = false
		}
	}
}

func Discriminator() FieldOption {
	return func(d *fieldDecl) {
		if d.column != nil {
			d.column.Discriminator = true
		}
	}
}

func Unique() FieldOption {
	return func(d *fieldDecl) {
		if d.column != nil {
			d.column.Unique = true
		}
	}
}

// ForeignKey отмечает колонку как внешний ключ на сущность target.
func ForeignKey(target string) FieldOption {
	return func(d *fieldDecl) {
		if d.column != nil {
			d.column.References = target
		}
	}
}

// Backref создаёт обратное свойство name на целевой сущности.
// list=false делает обратную сторону одиночной (one-to-one).
func Backref(name string, list bool) FieldOption {
	return func(d *fieldDecl) {
		if d.relation != nil {
			d.relation.Backref = name
			d.relation.BackrefList = list
		}
	}
}

// UseList переключает связь между коллекцией и одиночной записью.
func UseList(v bool) FieldOption {
	return func(d *fieldDecl) {
		if d.relation != nil {
			d.relation.UseList = v
		}
	}
}

// Configured прикрепляет к полю FieldConfig.
func Configured(opts ...ConfigOption) FieldOption {
	return func(d *fieldDecl) {
		d.cfg = append(d.cfg, opts...)
		d.hasCfg = true
	}
}

// EntityBuilder — статическое объявление одной сущности.
type EntityBuilder struct {
	reg     *Registry
	name    string
	module  string
	table   string
	base    string
	label   string
	fields  []*fieldDecl
	configs []configDecl
}

// Declare начинает объявление сущности. Порядок создания полей глобальный
// и монотонный.
func (r *Registry) Declare(name string) *EntityBuilder {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &EntityBuilder{reg: r, name: name}
	r.builders = append(r.builders, b)
	return b
}

func (b *EntityBuilder) Module(m string) *EntityBuilder     { b.module = m; return b }
func (b *EntityBuilder) Table(t string) *EntityBuilder      { b.table = t; return b }
func (b *EntityBuilder) Extends(base string) *EntityBuilder { b.base = base; return b }

// Label задаёт колонку, которой подписывается запись в списках выбора.
func (b *EntityBuilder) Label(col string) *EntityBuilder { b.label = col; return b }

func (b *EntityBuilder) add(d *fieldDecl, opts []FieldOption) *EntityBuilder {
	for _, o := range opts {
		o(d)
	}
	b.reg.mu.Lock()
	d.order = b.reg.nextOrder()
	b.reg.mu.Unlock()
	b.fields = append(b.fields, d)
	return b
}

// Column объявляет колонку. По умолчанию колонка допускает NULL.
func (b *EntityBuilder) Column(name string, typ ColumnType, opts ...FieldOption) *EntityBuilder {
	return b.add(&fieldDecl{key: name, column: &Column{Name: name, Type: typ, Nullable: true}}, opts)
}

// ManyToOne объявляет связь через локальный внешний ключ localColumn.
// Если колонка не объявлена, она будет добавлена при Finalize с типом ключа цели.
func (b *EntityBuilder) ManyToOne(key, target, localColumn string, opts ...FieldOption) *EntityBuilder {
	rel := &Relation{Target: target, Direction: DirManyToOne, LocalColumn: localColumn}
	return b.add(&fieldDecl{key: key, relation: rel}, opts)
}

// OneToMany объявляет коллекцию записей цели, ссылающихся на владельца колонкой remoteColumn.
// UseList(false) делает её одиночной (one-to-one).
func (b *EntityBuilder) OneToMany(key, target, remoteColumn string, opts ...FieldOption) *EntityBuilder {
	rel := &Relation{Target: target, Direction: DirOneToMany, UseList: true, RemoteColumn: remoteColumn}
	return b.add(&fieldDecl{key: key, relation: rel}, opts)
}

// ManyToMany объявляет связь через таблицу связей.
func (b *EntityBuilder) ManyToMany(key, target string, join JoinTable, opts ...FieldOption) *EntityBuilder {
	rel := &Relation{Target: target, Direction: DirManyToMany, UseList: true, JoinTable: &join}
	return b.add(&fieldDecl{key: key, relation: rel}, opts)
}

// Configure задаёт настройки поля без объявления самого поля
// (например, для поля, унаследованного от базовой сущности).
func (b *EntityBuilder) Configure(key string, opts ...ConfigOption) *EntityBuilder {
	b.configs = append(b.configs, configDecl{key: key, opts: opts})
	return b
}

// Overlay накладывает настройки на поле объявленной сущности entity
// (FQN или уникальное имя) поверх уже заданных. Вызывается до Finalize.
func (r *Registry) Overlay(entity, key string, opts ...ConfigOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return Configf("overlay for %s.%s after finalization", entity, key)
	}
	var found *EntityBuilder
	for _, b := range r.builders {
		fqn := b.name
		if b.module != "" {
			fqn = b.module + "." + b.name
		}
		if fqn != entity && b.name != entity {
			continue
		}
		if found != nil {
			return Configf("ambiguous entity %q in overlay", entity)
		}
		found = b
	}
	if found == nil {
		return Configf("overlay for unknown entity %q", entity)
	}
	found.configs = append(found.configs, configDecl{key: key, opts: opts, merge: true})
	return nil
}

// Finalize строит сущности: наследование, цели связей, обратные свойства, конфиги.
// Повторный вызов ничего не делает.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil
	}

	byName := map[string]*EntityBuilder{}
	for _, b := range r.builders {
		if strings.TrimSpace(b.name) == "" {
			return Configf("entity with empty name")
		}
		e := &Entity{
			Name:        b.name,
			Module:      b.module,
			Table:       b.table,
			Base:        b.base,
			LabelColumn: b.label,
			byKey:       map[string]*Property{},
			config:      ConfigMap{},
		}
		if e.Table == "" {
			e.Table = TableName(b.name)
		}
		if _, dup := r.entities[e.FQN()]; dup {
			return configErr(e.Name, "", "duplicate entity in module %q", e.Module)
		}
		r.entities[e.FQN()] = e
		r.order = append(r.order, e)
		byName[e.FQN()] = b
	}

	// 1) наследование свойств и конфигов
	done := map[*Entity]bool{}
	var build func(e *Entity, path []string) error
	build = func(e *Entity, path []string) error {
		if done[e] {
			return nil
		}
		for _, p := range path {
			if p == e.Name {
				return configErr(e.Name, "", "inheritance cycle: %s", strings.Join(append(path, e.Name), " -> "))
			}
		}
		b := byName[e.FQN()]
		if e.Base != "" {
			base, ok := r.lookupLocked(e.Module, e.Base)
			if !ok {
				return configErr(e.Name, "", "unknown base entity %q", e.Base)
			}
			if err := build(base, append(path, e.Name)); err != nil {
				return err
			}
			e.base = base
			for _, p := range base.props {
				e.appendProperty(p.clone(e))
			}
			e.config = base.config.clone()
			if e.LabelColumn == "" {
				e.LabelColumn = base.LabelColumn
			}
		}
		for _, d := range b.fields {
			p := &Property{Key: d.key, CreationOrder: d.order, owner: e}
			if d.column != nil {
				c := *d.column
				p.Column = &c
			}
			if d.relation != nil {
				rel := *d.relation
				p.Relation = &rel
			}
			e.appendProperty(p)
			if d.hasCfg {
				e.config[d.key] = NewFieldConfig(d.cfg...)
			}
		}
		for _, c := range b.configs {
			cfg := DefaultFieldConfig()
			if c.merge {
				cfg, _ = e.config.Lookup(c.key)
			}
			for _, o := range c.opts {
				o(&cfg)
			}
			e.config[c.key] = cfg
		}
		done[e] = true
		return nil
	}
	for _, e := range r.order {
		if err := build(e, nil); err != nil {
			return err
		}
	}

	// 2) цели связей и недостающие колонки внешних ключей
	notNull := map[string]bool{}
	for _, b := range r.builders {
		for _, d := range b.fields {
			if d.relation != nil && d.notNull {
				notNull[b.name+"."+d.key] = true
			}
		}
	}
	for _, e := range r.order {
		for _, p := range e.Properties() {
			if p.Relation == nil {
				continue
			}
			target, ok := r.lookupLocked(e.Module, p.Relation.Target)
			if !ok {
				return configErr(e.Name, p.Key, "unknown relation target %q", p.Relation.Target)
			}
			p.Relation.target = target
			p.Relation.Target = target.Name
		}
	}
	for _, e := range r.order {
		for _, p := range e.Properties() {
			if p.Relation == nil || p.Relation.Direction != DirManyToOne {
				continue
			}
			if _, ok := e.ColumnProperty(p.Relation.LocalColumn); ok {
				continue
			}
			tpk, err := p.Relation.target.PrimaryKey()
			if err != nil {
				return configErr(e.Name, p.Key, "cannot derive foreign key column: %v", err)
			}
			required := false
			for cur := e; cur != nil; cur = cur.base {
				if notNull[cur.Name+"."+p.Key] {
					required = true
				}
			}
			col := &Property{
				Key:           p.Relation.LocalColumn,
				CreationOrder: p.CreationOrder,
				owner:         e,
				Column: &Column{
					Name:       p.Relation.LocalColumn,
					Type:       tpk.Column.Type,
					Nullable:   !required,
					References: p.Relation.Target,
				},
			}
			e.insertBefore(col, p.Key)
		}
	}
	for _, e := range r.order {
		for _, p := range e.props {
			if err := r.checkJoinColumns(e, p); err != nil {
				return err
			}
		}
	}

	// 3) обратные свойства, объявленные через backref
	for _, e := range r.order {
		for _, p := range e.Properties() {
			if p.Relation == nil || p.Relation.Backref == "" || p.owner != e {
				continue
			}
			if e.base != nil {
				if bp, ok := e.base.byKey[p.Key]; ok && bp.Relation != nil && bp.Relation.Backref == p.Relation.Backref {
					// backref уже создан базовой сущностью
					continue
				}
			}
			if err := r.addBackref(e, p); err != nil {
				return err
			}
		}
	}

	// 4) обратные свойства всех связей; больше одного: ошибка конфигурации
	for _, e := range r.order {
		for _, p := range e.props {
			if p.Relation == nil {
				continue
			}
			p.Relation.reverse = findReverse(p)
			if len(p.Relation.reverse) > 1 {
				keys := make([]string, 0, len(p.Relation.reverse))
				for _, q := range p.Relation.reverse {
					keys = append(keys, q.owner.Name+"."+q.Key)
				}
				return configErr(e.Name, p.Key, "ambiguous reverse relation: %s", strings.Join(keys, ", "))
			}
		}
	}

	r.finalized = true
	return nil
}

func (r *Registry) checkJoinColumns(e *Entity, p *Property) error {
	if p.Relation == nil {
		return nil
	}
	rel := p.Relation
	switch rel.Direction {
	case DirManyToOne:
		if _, ok := e.ColumnProperty(rel.LocalColumn); !ok {
			return configErr(e.Name, p.Key, "foreign key column %q not found", rel.LocalColumn)
		}
	case DirOneToMany:
		if _, ok := rel.target.ColumnProperty(rel.RemoteColumn); !ok {
			return configErr(e.Name, p.Key, "foreign key column %q not found on %s", rel.RemoteColumn, rel.target.Name)
		}
		if _, err := e.PrimaryKey(); err != nil {
			return err
		}
	case DirManyToMany:
		if rel.JoinTable == nil || rel.JoinTable.Name == "" || rel.JoinTable.Local == "" || rel.JoinTable.Remote == "" {
			return configErr(e.Name, p.Key, "many-to-many relation requires a join table")
		}
		if _, err := e.PrimaryKey(); err != nil {
			return err
		}
		if _, err := rel.target.PrimaryKey(); err != nil {
			return err
		}
	default:
		return configErr(e.Name, p.Key, "relation without direction")
	}
	return nil
}

func (r *Registry) addBackref(e *Entity, p *Property) error {
	target := p.Relation.target
	if _, exists := target.byKey[p.Relation.Backref]; exists {
		return configErr(target.Name, p.Relation.Backref, "backref of %s.%s conflicts with an existing property", e.Name, p.Key)
	}
	rel := &Relation{Target: e.Name, target: e}
	switch p.Relation.Direction {
	case DirManyToOne:
		rel.Direction = DirOneToMany
		rel.RemoteColumn = p.Relation.LocalColumn
		rel.UseList = p.Relation.BackrefList
	case DirOneToMany:
		rel.Direction = DirManyToOne
		rel.LocalColumn = p.Relation.RemoteColumn
	case DirManyToMany:
		jt := p.Relation.JoinTable
		rel.Direction = DirManyToMany
		rel.UseList = true
		rel.JoinTable = &JoinTable{Name: jt.Name, Local: jt.Remote, Remote: jt.Local}
	}
	target.appendProperty(&Property{
		Key:           p.Relation.Backref,
		Relation:      rel,
		CreationOrder: r.nextOrder(),
		owner:         target,
	})
	return nil
}

// findReverse ищет на цели связи, зеркальные p (тот же внешний ключ или та же таблица связей).
func findReverse(p *Property) []*Property {
	rel := p.Relation
	var out []*Property
	for _, q := range rel.target.props {
		if q == p || q.Relation == nil || q.Relation.target == nil || !p.owner.IsA(q.Relation.target) {
			continue
		}
		qr := q.Relation
		switch rel.Direction {
		case DirManyToOne:
			if qr.Direction == DirOneToMany && qr.RemoteColumn == rel.LocalColumn {
				out = append(out, q)
			}
		case DirOneToMany:
			if qr.Direction == DirManyToOne && qr.LocalColumn == rel.RemoteColumn {
				out = append(out, q)
			}
		case DirManyToMany:
			if qr.Direction == DirManyToMany && qr.JoinTable != nil &&
				qr.JoinTable.Name == rel.JoinTable.Name &&
				qr.JoinTable.Local == rel.JoinTable.Remote && qr.JoinTable.Remote == rel.JoinTable.Local {
				out = append(out, q)
			}
		}
	}
	return out
}

func (e *Entity) appendProperty(p *Property) {
	if old, ok := e.byKey[p.Key]; ok {
		// переопределение унаследованного поля
		for i, cur := range e.props {
			if cur == old {
				e.props[i] = p
			}
		}
		e.byKey[p.Key] = p
		return
	}
	e.props = append(e.props, p)
	e.byKey[p.Key] = p
}

func (e *Entity) insertBefore(p *Property, key string) {
	for i, cur := range e.props {
		if cur.Key == key {
			e.props = append(e.props[:i], append([]*Property{p}, e.props[i:]...)...)
			e.byKey[p.Key] = p
			return
		}
	}
	e.appendProperty(p)
}

// Entities возвращает сущности в порядке объявления.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Entity(nil), r.order...)
}

// Entity ищет сущность по FQN или по уникальному имени.
func (r *Registry) Entity(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := strings.IndexByte(name, '.'); i > 0 {
		return r.lookupLocked(name[:i], name[i+1:])
	}
	return r.lookupLocked("", name)
}

// MustEntity — для тестов и статических объявлений.
func (r *Registry) MustEntity(name string) *Entity {
	e, ok := r.Entity(name)
	if !ok {
		panic(fmt.Sprintf("schema: unknown entity %q", name))
	}
	return e
}

// Resolve находит сущность по паре {module, name}.
func (r *Registry) Resolve(module, name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(module, name)
}

// lookupLocked: сначала точный FQN, потом без учёта регистра;
// без модуля — только если имя уникально среди всех модулей.
func (r *Registry) lookupLocked(module, name string) (*Entity, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		module, name = name[:i], name[i+1:]
	}
	ml := strings.ToLower(strings.TrimSpace(module))
	nl := strings.ToLower(name)

	if ml != "" {
		if e, ok := r.entities[module+"."+name]; ok {
			return e, true
		}
		for _, e := range r.order {
			if strings.ToLower(e.Module) == ml && strings.ToLower(e.Name) == nl {
				return e, true
			}
		}
		// цель может лежать в другом модуле, ищем по уникальному имени ниже
	}
	if e, ok := r.entities[name]; ok {
		return e, true
	}
	var found *Entity
	for _, e := range r.order {
		if strings.ToLower(e.Name) == nl {
			if found != nil { // неуникально
				return nil, false
			}
			found = e
		}
	}
	return found, found != nil
}

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

// TableName — имя таблицы по умолчанию: множественное число в нижнем регистре,
// зарезервированные слова получают префикс.
func TableName(entity string) string {
	t := strings.ToLower(entity)
	if !strings.HasSuffix(t, "s") {
		t += "s"
	}
	if _, ok := reserved[t]; ok {
		t = "e_" + t
	}
	return t
}
