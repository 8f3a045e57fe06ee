// Package policy выбирает контрол для свойства сущности по его виду,
// имени, типу колонки и настройкам поля.
package policy

import (
	"fmt"

	"autoform/internal/schema"
	"autoform/internal/validate"
	"autoform/internal/widget"
)

// Rule — имя контрола и, при необходимости, валидатора.
type Rule struct {
	Widget    string
	Validator string
}

// TypeRule применяется к колонкам перечисленных типов.
type TypeRule struct {
	Types []schema.ColumnType
	Rule
}

// Policy — стратегия выбора контролов. Пустое имя контрола означает,
// что правило не настроено (для PKey — что поле не показывается).
type Policy struct {
	Name           string
	PKey           string
	OneToMany      string // и many-to-many
	ManyToOne      string
	OneToOne       string
	TabbedOneToOne string // one-to-one, когда у цели или у поля есть вкладки
	NameWidgets    map[string]Rule
	TypeWidgets    []TypeRule
	Default        string

	// Displayable — показывать ли поле с данным конфигом.
	Displayable func(schema.FieldConfig) bool
	// ConfigAvailable разрешает переопределения виджета/валидатора и вкладки.
	ConfigAvailable bool

	Widgets    *widget.Registry
	Validators *validate.Registry
}

// View — политика просмотра: подписи, сетки для коллекций, наборы полей для one-to-one.
func View(w *widget.Registry, v *validate.Registry) *Policy {
	return &Policy{
		Name:        "view",
		OneToMany:   widget.Grid,
		ManyToOne:   widget.LabelField,
		OneToOne:    widget.ViewFieldSet,
		Default:     widget.LabelField,
		Displayable: func(c schema.FieldConfig) bool { return c.Viewable },
		Widgets:     w,
		Validators:  v,
	}
}

// Edit — политика редактирования.
func Edit(w *widget.Registry, v *validate.Registry) *Policy {
	return &Policy{
		Name:           "edit",
		OneToMany:      widget.CheckBoxList,
		ManyToOne:      widget.SingleSelect,
		OneToOne:       widget.FieldSet,
		TabbedOneToOne: widget.EmptyTable,
		NameWidgets: map[string]Rule{
			"password":  {Widget: widget.Password},
			"email":     {Widget: widget.Text, Validator: "email"},
			"ipaddress": {Widget: widget.Text, Validator: "ip"},
		},
		TypeWidgets: []TypeRule{
			{Types: []schema.ColumnType{schema.String, schema.Text}, Rule: Rule{Widget: widget.Text}},
			{Types: []schema.ColumnType{schema.Int}, Rule: Rule{Widget: widget.Text, Validator: "int"}},
			{Types: []schema.ColumnType{schema.Float}, Rule: Rule{Widget: widget.Text, Validator: "float"}},
			{Types: []schema.ColumnType{schema.DateTime}, Rule: Rule{Widget: widget.DateTime, Validator: "datetime"}},
			{Types: []schema.ColumnType{schema.Date}, Rule: Rule{Widget: widget.DatePicker, Validator: "date"}},
			{Types: []schema.ColumnType{schema.Binary}, Rule: Rule{Widget: widget.File}},
			{Types: []schema.ColumnType{schema.Bool}, Rule: Rule{Widget: widget.CheckBox}},
			{Types: []schema.ColumnType{schema.UUID}, Rule: Rule{Widget: widget.Text, Validator: "uuid"}},
		},
		Displayable:     func(c schema.FieldConfig) bool { return c.Editable },
		ConfigAvailable: true,
		Widgets:         w,
		Validators:      v,
	}
}

// Visible — проходит ли поле key фильтр отображения политики.
func (pol *Policy) Visible(cfg schema.ConfigMap, key string) bool {
	c, ok := cfg.Lookup(key)
	if !ok || pol.Displayable == nil {
		return true
	}
	return pol.Displayable(c)
}

// Factory строит контрол для свойства p. nil без ошибки — поле не показывается.
func (pol *Policy) Factory(p *schema.Property, cfg schema.ConfigMap) (*widget.Control, error) {
	var override schema.FieldConfig
	if pol.ConfigAvailable {
		override, _ = cfg.Lookup(p.Key)
	}
	kind := schema.Classify(p)
	owner := ""
	if p.Owner() != nil {
		owner = p.Owner().Name
	}
	fail := func(format string, args ...any) error {
		return &schema.ConfigError{Entity: owner, Msg: fmt.Sprintf(format, args...)}
	}

	var rule Rule
	switch {
	case override.Widget != "":
		rule.Widget = override.Widget
	case kind == schema.OneToMany || kind == schema.ManyToMany:
		if pol.OneToMany == "" {
			return nil, fail("cannot automatically create a widget for %s relation '%s'", kind, p.Key)
		}
		rule.Widget = pol.OneToMany
	case p.IsPrimaryKey():
		rule.Widget = pol.PKey
	case kind == schema.ManyToOne:
		if pol.ManyToOne == "" {
			return nil, fail("cannot automatically create a widget for %s relation '%s'", kind, p.Key)
		}
		rule.Widget = pol.ManyToOne
	case kind == schema.OneToOne:
		if pol.OneToOne == "" {
			return nil, fail("cannot automatically create a widget for %s relation '%s'", kind, p.Key)
		}
		rule.Widget = pol.OneToOne
		tabbed := override.Tab != "" || p.Target().Config().HasTabs()
		if tabbed && pol.TabbedOneToOne != "" {
			rule.Widget = pol.TabbedOneToOne
		}
	default:
		var ok bool
		if rule, ok = pol.NameWidgets[p.Key]; ok {
			break
		}
		if rule, ok = pol.typeRule(p.Column.Type); ok {
			break
		}
		if pol.Default == "" {
			return nil, fail("cannot automatically create a widget for '%s'", p.Key)
		}
		rule = Rule{Widget: pol.Default}
	}
	if rule.Widget == "" {
		return nil, nil
	}

	required := schema.IsRequired(p)
	args := widget.Args{ID: p.Key, Required: required, Tab: override.Tab}
	if kind.IsRelation() {
		// валидатор связи ставит сам контрол
		if override.Validator != "" {
			return nil, fail("validator override is not supported for '%s'", p.Key)
		}
		args.Entity = p.Target()
		if kind == schema.OneToOne {
			args.ReverseProperty, _ = schema.ReverseKey(p)
		}
	} else {
		name := override.Validator
		if name == "" {
			name = rule.Validator
		}
		switch {
		case name != "":
			v, err := pol.Validators.Build(name, required)
			if err != nil {
				return nil, fail("%s: %v", p.Key, err)
			}
			args.Validator = v
		case required:
			args.Validator = validate.Required{}
		}
	}
	c, err := pol.Widgets.Build(rule.Widget, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", owner, p.Key, err)
	}
	return c, nil
}

func (pol *Policy) typeRule(t schema.ColumnType) (Rule, bool) {
	for _, tr := range pol.TypeWidgets {
		for _, typ := range tr.Types {
			if typ == t {
				return tr.Rule, true
			}
		}
	}
	return Rule{}, false
}
