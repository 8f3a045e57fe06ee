package compose

import (
	"sync"

	"autoform/internal/policy"
	"autoform/internal/schema"
	"autoform/internal/validate"
	"autoform/internal/widget"
)

// Container — ленивый источник дочерних контролов автоконтейнера.
// Композиция выполняется один раз; повторные вызовы возвращают тот же результат.
type Container struct {
	mu        sync.Mutex
	spec      Spec
	processed bool
	kids      []*widget.Control
	err       error
}

func NewContainer(sp Spec) *Container { return &Container{spec: sp} }

func (c *Container) Children() ([]*widget.Control, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.processed {
		c.kids, c.err = Compose(c.spec)
		c.processed = true
	}
	return c.kids, c.err
}

func (c *Container) Processed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed
}

// inherit задаёт сущность родителя, если у контейнера своей нет.
func (c *Container) inherit(e *schema.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spec.Entity == nil && !c.processed {
		c.spec.Parent = e
	}
}

// Kit — связанные реестры и две встроенные политики.
type Kit struct {
	Widgets    *widget.Registry
	Validators *validate.Registry
	View       *policy.Policy
	Edit       *policy.Policy
}

// NewKit создаёт реестры, политики и регистрирует автоконтейнеры.
func NewKit() *Kit {
	w := widget.NewRegistry()
	v := validate.NewRegistry()
	k := &Kit{Widgets: w, Validators: v, View: policy.View(w, v), Edit: policy.Edit(w, v)}
	Install(w, k.View, k.Edit)
	return k
}

type cacheKey struct {
	kind    string
	entity  *schema.Entity
	reverse string
}

// Install регистрирует фабрики составных автоконтейнеров. Контейнеры без
// авторских детей кэшируются по (вид, сущность, обратное свойство), поэтому
// повторное обращение к той же сущности разделяет один Source.
func Install(w *widget.Registry, view, edit *policy.Policy) {
	var mu sync.Mutex
	cache := map[cacheKey]*Container{}
	source := func(kind string, pol *policy.Policy, a widget.Args) *Container {
		sp := Spec{Entity: a.Entity, Policy: pol, Children: a.Children, ReverseProperty: a.ReverseProperty}
		if len(a.Children) > 0 || a.Entity == nil {
			return NewContainer(sp)
		}
		key := cacheKey{kind, a.Entity, a.ReverseProperty}
		mu.Lock()
		defer mu.Unlock()
		ct, ok := cache[key]
		if !ok {
			ct = NewContainer(sp)
			cache[key] = ct
		}
		return ct
	}
	auto := func(kind string, pol *policy.Policy, setup func(*widget.Control, widget.Args)) widget.Factory {
		return func(a widget.Args) (*widget.Control, error) {
			c := &widget.Control{
				ID:              a.ID,
				Type:            kind,
				Entity:          a.Entity,
				Required:        a.Required,
				Validator:       a.Validator,
				ReverseProperty: a.ReverseProperty,
				Tab:             a.Tab,
				Attrs:           a.Attrs,
				Layout:          widget.Fields,
				Source:          source(kind, pol, a),
			}
			if a.ID != "" {
				c.Label = widget.Label(a.ID)
			} else if a.Entity != nil {
				c.Label = widget.Label(a.Entity.Name)
			}
			if setup != nil {
				setup(c, a)
			}
			return c, nil
		}
	}
	oneToOne := func(c *widget.Control, a widget.Args) {
		c.Embedded = true
		c.Validator = validate.OneToOne{Required: a.Required}
	}

	w.Register(widget.TableForm, auto(widget.TableForm, edit, nil))
	w.Register(widget.GrowingGrid, auto(widget.GrowingGrid, edit, func(c *widget.Control, _ widget.Args) {
		c.Layout = widget.Rows
		c.SkipEmptyRows = true
	}))
	w.Register(widget.FieldSet, auto(widget.FieldSet, edit, oneToOne))
	w.Register(widget.EmptyTable, auto(widget.EmptyTable, edit, oneToOne))
	w.Register(widget.Grid, auto(widget.Grid, view, func(c *widget.Control, _ widget.Args) {
		c.Layout = widget.Rows
		c.ReadOnly = true
	}))
	w.Register(widget.ViewFieldSet, auto(widget.ViewFieldSet, view, func(c *widget.Control, _ widget.Args) {
		c.Embedded = true
		c.ReadOnly = true
	}))
}
