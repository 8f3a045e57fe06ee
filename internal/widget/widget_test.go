package widget_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/orm"
	"autoform/internal/schema"
	"autoform/internal/store/memstore"
	"autoform/internal/testmodel"
	"autoform/internal/validate"
	"autoform/internal/widget"
)

func build(t *testing.T, r *widget.Registry, name string, a widget.Args) *widget.Control {
	t.Helper()
	c, err := r.Build(name, a)
	require.NoError(t, err)
	return c
}

func session(t *testing.T) (*schema.Registry, *orm.Session) {
	t.Helper()
	reg := testmodel.New()
	s, err := orm.Open(context.Background(), memstore.New(), reg)
	require.NoError(t, err)
	for _, name := range []string{"one", "two"} {
		o := s.New(reg.MustEntity("Other"))
		require.NoError(t, o.Set("name", name))
	}
	require.NoError(t, s.Flush())
	t.Cleanup(func() { _ = s.Rollback() })
	return reg, s
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "User Name", widget.Label("user_name"))
	assert.Equal(t, "Account Name", widget.Label("AccountName"))
	assert.Equal(t, "Id", widget.Label("id"))
}

func TestPath(t *testing.T) {
	assert.Equal(t, "a:c", widget.Path("a", "", "c"))
	assert.Equal(t, "", widget.Path("", ""))
}

func TestUnflatten(t *testing.T) {
	vals := url.Values{
		"form:name":                 {"x"},
		"form:account:account_name": {"acc"},
		"form:groups":               {"1", "2"},
		"other":                     {"ignored"},
	}
	got := widget.Unflatten(vals, "form")
	assert.Equal(t, map[string]any{
		"name":    "x",
		"account": map[string]any{"account_name": "acc"},
		"groups":  []string{"1", "2"},
	}, got)

	all := widget.Unflatten(url.Values{"a:0:b": {"1"}, "a:1:b": {"2"}}, "")
	assert.Equal(t, map[string]any{"a": map[string]any{
		"0": map[string]any{"b": "1"},
		"1": map[string]any{"b": "2"},
	}}, all)
}

func TestValidateCollectsPerPath(t *testing.T) {
	reg, s := session(t)
	r := widget.NewRegistry()

	name := build(t, r, widget.Text, widget.Args{ID: "name", Required: true, Validator: validate.Required{}})
	other := build(t, r, widget.SingleSelect, widget.Args{ID: "other", Entity: reg.MustEntity("Other"), Required: true})
	notes := build(t, r, widget.TextArea, widget.Args{ID: "notes"})
	group := build(t, r, widget.Table, widget.Args{Children: []*widget.Control{name, other}})
	tabs := build(t, r, widget.Tabs, widget.Args{Children: []*widget.Control{group, notes}})
	form := build(t, r, widget.Table, widget.Args{ID: "form", Children: []*widget.Control{tabs}})

	out, errs, err := widget.Validate(s, form, map[string]any{"name": "", "other": "9", "notes": "n"})
	require.NoError(t, err)
	assert.Nil(t, out)
	require.Len(t, errs, 2, spew.Sdump(errs))
	assert.Equal(t, "form:name", errs[0].Field)
	assert.Equal(t, validate.ErrRequired, errs[0].Code)
	assert.Equal(t, "form:other", errs[1].Field)
	assert.Equal(t, validate.ErrNoMatch, errs[1].Code)

	out, errs, err = widget.Validate(s, form, map[string]any{"name": "x", "other": "2", "notes": "n"})
	require.NoError(t, err)
	require.Empty(t, errs)
	m := out.(map[string]any)
	assert.Equal(t, "x", m["name"])
	assert.Equal(t, "n", m["notes"])
	rec := m["other"].(*orm.Record)
	assert.Equal(t, "two", rec.String())
}

func TestCheckBoxAndLabel(t *testing.T) {
	r := widget.NewRegistry()
	cb := build(t, r, widget.CheckBox, widget.Args{ID: "active", Required: true, Validator: validate.Required{}})
	lbl := build(t, r, widget.LabelField, widget.Args{ID: "created"})
	form := build(t, r, widget.Table, widget.Args{Children: []*widget.Control{cb, lbl}})

	out, errs, err := widget.Validate(nil, form, map[string]any{"created": "x"})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, map[string]any{"active": false}, out)

	out, _, err = widget.Validate(nil, form, map[string]any{"active": "on"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"active": true}, out)
}

func TestRowsSkipEmpty(t *testing.T) {
	r := widget.NewRegistry()
	n := build(t, r, widget.Text, widget.Args{ID: "name", Validator: validate.Required{}})
	grid := &widget.Control{ID: "items", Type: "growing_grid", Layout: widget.Rows, SkipEmptyRows: true, Children: []*widget.Control{n}}

	out, errs, err := widget.Validate(nil, grid, map[string]any{
		"1": map[string]any{"name": "b"},
		"0": map[string]any{"name": "a"},
		"2": map[string]any{"name": ""},
	})
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}, out)

	grid.SkipEmptyRows = false
	_, errs, err = widget.Validate(nil, grid, []any{map[string]any{"name": ""}})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "items:0:name", errs[0].Field)
}

func TestDescribeRecord(t *testing.T) {
	reg, s := session(t)
	r := widget.NewRegistry()
	tr := s.New(reg.MustEntity("Test"))
	require.NoError(t, tr.Set("name", "t"))
	two, err := s.Query(reg.MustEntity("Other")).Get(2)
	require.NoError(t, err)
	require.NoError(t, tr.Set("other", two))

	name := build(t, r, widget.Text, widget.Args{ID: "name", Required: true})
	other := build(t, r, widget.SingleSelect, widget.Args{ID: "other", Entity: reg.MustEntity("Other")})
	form := build(t, r, widget.Table, widget.Args{ID: "f", Children: []*widget.Control{name, other}})

	node, err := widget.Describe(s, form, tr, []*validate.FieldError{{Field: "f:name", Message: "Enter a value"}})
	require.NoError(t, err)
	require.Len(t, node.Children, 2, spew.Sdump(node))
	assert.Equal(t, "t", node.Children[0].Value)
	assert.Equal(t, "Enter a value", node.Children[0].Error)
	assert.Equal(t, "f:other", node.Children[1].Name)
	assert.Equal(t, "2", node.Children[1].Value)
	assert.Equal(t, []widget.Option{
		{Value: "1", Label: "one"},
		{Value: "2", Label: "two", Selected: true},
	}, node.Children[1].Options)
}

func TestUnknownWidget(t *testing.T) {
	_, err := widget.NewRegistry().Build("nope", widget.Args{})
	assert.Error(t, err)
}
