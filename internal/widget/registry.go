package widget

import (
	"fmt"
	"sort"
	"sync"

	"autoform/internal/schema"
	"autoform/internal/validate"
)

// Имена встроенных контролов.
const (
	Text          = "text"
	Password      = "password"
	TextArea      = "textarea"
	Hidden        = "hidden"
	CheckBox      = "checkbox"
	File          = "file"
	DatePicker    = "date"
	DateTime      = "datetime"
	LabelField    = "label"
	SingleSelect  = "single_select"
	RadioList     = "radio_list"
	CheckBoxList  = "checkbox_list"
	CheckBoxTable = "checkbox_table"
	None          = "none"
	Table         = "table"
	Tabs          = "tabs"
)

// Составные автоконтейнеры; фабрики ставит compose.Install.
const (
	TableForm    = "table_form"
	Grid         = "grid"
	ViewFieldSet = "view_fieldset"
	FieldSet     = "fieldset"
	EmptyTable   = "empty_table"
	GrowingGrid  = "growing_grid"
)

// Args — параметры построения контрола.
type Args struct {
	ID              string
	Entity          *schema.Entity
	Required        bool
	Validator       validate.Validator
	ReverseProperty string
	Tab             string
	Attrs           map[string]string
	Children        []*Control
}

// Factory строит контрол по параметрам.
type Factory func(Args) (*Control, error)

// Registry — фабрики контролов по имени. Составные автоконтейнеры
// регистрируются отдельно (см. compose.Install).
type Registry struct {
	mu sync.RWMutex
	m  map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{m: map[string]Factory{}}
	for _, name := range []string{Text, Password, TextArea, Hidden, File, DatePicker, DateTime} {
		r.Register(name, leaf(name))
	}
	r.Register(CheckBox, checkBox)
	r.Register(LabelField, func(a Args) (*Control, error) {
		c := newControl(LabelField, a)
		c.ReadOnly = true
		c.Validator = nil
		return c, nil
	})
	r.Register(SingleSelect, selection(SingleSelect, false))
	r.Register(RadioList, selection(RadioList, false))
	r.Register(CheckBoxList, selection(CheckBoxList, true))
	r.Register(CheckBoxTable, selection(CheckBoxTable, true))
	r.Register(None, func(a Args) (*Control, error) { return &Control{ID: a.ID, Type: None, ReadOnly: true}, nil })
	r.Register(Table, container(Table))
	r.Register(Tabs, container(Tabs))
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[name] = f
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[name]
	return ok
}

// Build создаёт контрол зарегистрированного типа.
func (r *Registry) Build(name string, a Args) (*Control, error) {
	r.mu.RLock()
	f, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown widget %q", name)
	}
	return f(a)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func newControl(typ string, a Args) *Control {
	label := ""
	if a.ID != "" {
		label = Label(a.ID)
	}
	return &Control{
		ID:              a.ID,
		Type:            typ,
		Label:           label,
		Entity:          a.Entity,
		Required:        a.Required,
		Validator:       a.Validator,
		ReverseProperty: a.ReverseProperty,
		Tab:             a.Tab,
		Attrs:           a.Attrs,
		Children:        a.Children,
	}
}

func leaf(typ string) Factory {
	return func(a Args) (*Control, error) { return newControl(typ, a), nil }
}

// checkBox всегда разбирает значение как bool: неотмеченный флажок
// в запрос не попадает, поэтому обязательность к нему не применяется.
func checkBox(a Args) (*Control, error) {
	c := newControl(CheckBox, a)
	if _, req := a.Validator.(validate.Required); req || a.Validator == nil {
		c.Validator = validate.Typed{Type: schema.Bool}
	}
	return c, nil
}

// selection — выбор из записей сущности; валидатор связи ставится самим контролом.
func selection(typ string, multi bool) Factory {
	return func(a Args) (*Control, error) {
		c := newControl(typ, a)
		if a.Entity == nil {
			return c, nil
		}
		if _, err := a.Entity.PrimaryKey(); err != nil {
			return nil, err
		}
		c.Choices = true
		if multi {
			c.Validator = validate.RelatedItems{Entity: a.Entity, Required: a.Required}
		} else {
			c.Validator = validate.Related{Entity: a.Entity, Required: a.Required}
		}
		return c, nil
	}
}

func container(typ string) Factory {
	return func(a Args) (*Control, error) {
		c := newControl(typ, a)
		c.Layout = Fields
		return c, nil
	}
}
