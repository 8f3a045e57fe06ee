// Package compose строит дочерние контролы автоконтейнера по свойствам
// сущности: классификация, порядок, политика, авторские контролы, вкладки.
package compose

import (
	"autoform/internal/policy"
	"autoform/internal/schema"
	"autoform/internal/widget"
)

// DefaultTab — вкладка для полей без явной вкладки.
const DefaultTab = "General"

// Spec — входные данные композиции.
type Spec struct {
	Entity          *schema.Entity
	Parent          *schema.Entity // сущность родительского контейнера, если своей нет
	Policy          *policy.Policy
	Children        []*widget.Control // авторские контролы
	ReverseProperty string            // обратная сторона one-to-one, исключается
}

// Compose возвращает упорядоченный список дочерних контролов.
func Compose(sp Spec) ([]*widget.Control, error) {
	e := sp.Entity
	if e == nil {
		e = sp.Parent
	}
	if e == nil {
		return nil, schema.Configf("auto container has no entity")
	}
	pol := sp.Policy
	cfg := e.Config()

	shadow := map[string]bool{}
	for _, p := range e.Properties() {
		if name, ok := schema.LocalColumnName(p); ok {
			shadow[name] = true
		}
	}

	authored := map[string]*widget.Control{}
	for _, c := range sp.Children {
		if ct, ok := c.Source.(*Container); ok {
			ct.inherit(e)
		}
		if c.ID == "" {
			continue
		}
		if _, dup := authored[c.ID]; !dup {
			authored[c.ID] = c
		}
	}

	used := map[string]bool{}
	generated := map[string]bool{}
	var out []*widget.Control
	for _, p := range schema.SortProperties(e.Properties()) {
		switch {
		case p.IsDiscriminator():
			continue
		case !pol.Visible(cfg, p.Key):
			continue
		case shadow[p.Key]:
			continue
		case sp.ReverseProperty != "" && p.Key == sp.ReverseProperty:
			continue
		}
		name := effectiveName(p)
		if c, ok := authored[name]; ok {
			if !c.IsNone() {
				out = append(out, c)
			}
			used[name] = true
			continue
		}
		c, err := pol.Factory(p, cfg)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
			generated[c.ID] = true
		}
	}

	for _, c := range sp.Children {
		// контейнеры без ID не совпадают ни с одним полем
		if c.ID == "" {
			out = append(out, c)
			continue
		}
		if used[c.ID] || generated[c.ID] {
			continue
		}
		used[c.ID] = true
		out = append(out, c)
	}

	if pol.ConfigAvailable {
		out = GroupByTab(out, cfg, pol.Widgets)
	}
	return out, nil
}

// effectiveName — ID, под которым поле ищется среди авторских контролов:
// для many-to-one и one-to-one это теневая колонка.
func effectiveName(p *schema.Property) string {
	if name, ok := schema.LocalColumnName(p); ok {
		return name
	}
	return p.Key
}

// GroupByTab раскладывает контролы по вкладкам, если хотя бы у одного поля
// в cfg задана вкладка. Обычные поля вкладки оборачиваются в таблицу без ID,
// вложенные подформы кладутся во вкладку как есть, все вкладки — в один
// контейнер tabs без ID.
func GroupByTab(controls []*widget.Control, cfg schema.ConfigMap, reg *widget.Registry) []*widget.Control {
	if !cfg.HasTabs() {
		return controls
	}
	type group struct {
		fields   []*widget.Control
		embedded []*widget.Control
	}
	var order []string
	groups := map[string]*group{}
	for _, c := range controls {
		tab := DefaultTab
		if fc, ok := cfg[c.ID]; ok && fc.Tab != "" {
			tab = fc.Tab
		}
		g, ok := groups[tab]
		if !ok {
			g = &group{}
			groups[tab] = g
			if tab != DefaultTab {
				order = append(order, tab)
			}
		}
		if c.Embedded {
			g.embedded = append(g.embedded, c)
		} else {
			g.fields = append(g.fields, c)
		}
	}
	if _, ok := groups[DefaultTab]; ok {
		order = append(order, DefaultTab)
	}

	var items []*widget.Control
	for _, tab := range order {
		g := groups[tab]
		if len(g.fields) > 0 {
			items = append(items, build(reg, widget.Table, widget.Args{Tab: tab, Children: g.fields}))
		}
		for _, c := range g.embedded {
			cp := *c
			cp.Tab = tab
			items = append(items, &cp)
		}
	}
	return []*widget.Control{build(reg, widget.Tabs, widget.Args{Children: items})}
}

func build(reg *widget.Registry, name string, a widget.Args) *widget.Control {
	if reg != nil {
		if c, err := reg.Build(name, a); err == nil {
			return c
		}
	}
	return &widget.Control{Type: name, Tab: a.Tab, Children: a.Children, Layout: widget.Fields}
}
