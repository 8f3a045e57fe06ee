package widget

import (
	"errors"
	"strconv"

	"autoform/internal/orm"
	"autoform/internal/schema"
	"autoform/internal/validate"
)

// Node — описание контрола для клиента, который рисует форму.
type Node struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Type     string            `json:"type"`
	Label    string            `json:"label,omitempty"`
	Required bool              `json:"required,omitempty"`
	ReadOnly bool              `json:"readonly,omitempty"`
	Tab      string            `json:"tab,omitempty"`
	Value    any               `json:"value,omitempty"`
	Options  []Option          `json:"options,omitempty"`
	Error    string            `json:"error,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Node           `json:"children,omitempty"`
	Rows     [][]*Node         `json:"rows,omitempty"`
}

type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected,omitempty"`
}

// Describe строит описание дерева со значениями value (*orm.Record,
// []*orm.Record или разобранные данные запроса) и ошибками errs.
// Автоконтейнер, уже раскрытый выше по дереву, повторно не раскрывается.
func Describe(s *orm.Session, c *Control, value any, errs []*validate.FieldError) (*Node, error) {
	d := &describer{s: s, errs: map[string]string{}, active: map[Source]bool{}}
	for _, e := range errs {
		if _, dup := d.errs[e.Field]; !dup {
			d.errs[e.Field] = e.Message
		}
	}
	nodes, err := d.control(c, value, c.ID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &Node{Type: Table, Children: nodes}, nil
}

type describer struct {
	s      *orm.Session
	errs   map[string]string
	active map[Source]bool
}

func (d *describer) control(c *Control, value any, path string) ([]*Node, error) {
	if c.IsNone() {
		return nil, nil
	}
	n := &Node{
		ID:       c.ID,
		Name:     path,
		Type:     c.Type,
		Label:    c.Label,
		Required: c.Required,
		ReadOnly: c.ReadOnly,
		Tab:      c.Tab,
		Attrs:    c.Attrs,
		Error:    d.errs[path],
	}
	if c.ID == "" {
		n.Name = ""
	}
	if c.Source != nil {
		if d.active[c.Source] {
			n.Value = display(value)
			return []*Node{n}, nil
		}
		d.active[c.Source] = true
		defer delete(d.active, c.Source)
	}
	var err error
	switch c.Layout {
	case Fields:
		n.Children, err = d.fields(c, value, path)
	case Rows:
		n.Children, err = d.fields(c, nil, path)
		if err == nil {
			n.Rows, err = d.rows(c, value, path)
		}
	default:
		err = d.leaf(c, n, value)
	}
	if err != nil {
		return nil, err
	}
	return []*Node{n}, nil
}

func (d *describer) fields(c *Control, value any, path string) ([]*Node, error) {
	kids, err := c.Kids()
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, k := range kids {
		v, p := value, path
		if k.ID != "" {
			if v, err = childValue(value, k.ID); err != nil {
				return nil, err
			}
			p = Path(path, k.ID)
		}
		nodes, err := d.control(k, v, p)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

func (d *describer) rows(c *Control, value any, path string) ([][]*Node, error) {
	var rows []any
	switch t := value.(type) {
	case []*orm.Record:
		for _, r := range t {
			rows = append(rows, r)
		}
	case []any:
		rows = t
	case map[string]any:
		for _, r := range asRows(t) {
			rows = append(rows, r)
		}
	}
	out := make([][]*Node, 0, len(rows))
	for i, row := range rows {
		cells, err := d.fields(c, row, Path(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out = append(out, cells)
	}
	return out, nil
}

func (d *describer) leaf(c *Control, n *Node, value any) error {
	ext, err := d.external(c, value)
	if err != nil {
		return err
	}
	n.Value = ext
	if !c.Choices || c.Entity == nil || d.s == nil {
		return nil
	}
	recs, err := d.s.Query(c.Entity).All()
	if err != nil {
		return err
	}
	selected := map[string]bool{}
	switch t := ext.(type) {
	case string:
		selected[t] = true
	case []string:
		for _, v := range t {
			selected[v] = true
		}
	}
	for _, r := range recs {
		id, err := r.ID()
		if err != nil {
			return err
		}
		key := schema.FormatValue(id)
		n.Options = append(n.Options, Option{Value: key, Label: r.String(), Selected: selected[key]})
	}
	return nil
}

// external — значение в виде для формы: строки запроса как есть,
// записи через валидатор контрола, иначе строковое представление.
func (d *describer) external(c *Control, value any) (any, error) {
	switch value.(type) {
	case nil:
		return nil, nil
	case string, []string:
		return value, nil
	}
	if c.Validator != nil {
		ext, err := c.Validator.ToExternal(d.s, value)
		if err == nil {
			return ext, nil
		}
		var fe *validate.FieldError
		if !errors.As(err, &fe) {
			return nil, err
		}
	}
	return display(value), nil
}

func display(value any) any {
	switch t := value.(type) {
	case nil:
		return nil
	case *orm.Record:
		return t.String()
	case []*orm.Record:
		out := make([]string, len(t))
		for i, r := range t {
			out[i] = r.String()
		}
		return out
	case map[string]any, []any, []string:
		return t
	}
	return schema.FormatValue(value)
}

func childValue(value any, id string) (any, error) {
	switch t := value.(type) {
	case *orm.Record:
		if t == nil {
			return nil, nil
		}
		if _, ok := t.Entity().Property(id); !ok {
			return nil, nil
		}
		return t.Get(id)
	case map[string]any:
		return t[id], nil
	}
	return nil, nil
}
