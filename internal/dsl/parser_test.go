package dsl_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/dsl"
	"autoform/internal/schema"
)

const shop = `
module shop

# покупатели и заказы
entity Customer:
  id: int pk
  name: string required label
  email: string validator=email tab="Contact information"
  phone: string tab='Contact information'  # телефон

entity Order table=orders_tbl:
  id: int pk
  customer: ref[Customer] via=customer_id backref=orders required
  note: text widget=textarea
  tags: many[Tag] through=order_tags backref=orders

entity Tag:
  id: int pk
  name: string required label

entity Rush extends Order:
  priority: int
  config note: editable=false viewable=false
`

func TestParse(t *testing.T) {
	ents, err := dsl.Parse(strings.NewReader(shop), "shop.dsl")
	require.NoError(t, err)
	require.Len(t, ents, 4)

	c := ents[0]
	assert.Equal(t, "shop", c.Module)
	require.Len(t, c.Fields, 4)
	assert.Equal(t, "Contact information", c.Fields[2].Options["tab"])
	assert.Equal(t, "Contact information", c.Fields[3].Options["tab"])
	assert.True(t, c.Fields[1].Flag("label"))

	o := ents[1]
	assert.Equal(t, "orders_tbl", o.Table)
	assert.Equal(t, "ref", o.Fields[1].Type)
	assert.Equal(t, "Customer", o.Fields[1].Target)

	r := ents[3]
	assert.Equal(t, "Order", r.Base)
	require.Len(t, r.Configs, 1)
	assert.Equal(t, "false", r.Configs[0].Options["editable"])
}

func TestApply(t *testing.T) {
	ents, err := dsl.Parse(strings.NewReader(shop), "shop.dsl")
	require.NoError(t, err)
	reg := schema.NewRegistry()
	require.NoError(t, dsl.Apply(reg, ents))
	require.NoError(t, reg.Finalize())

	cust := reg.MustEntity("Customer")
	assert.Equal(t, "name", cust.LabelColumn)
	orders, ok := cust.Property("orders")
	require.True(t, ok)
	assert.Equal(t, schema.OneToMany, schema.Classify(orders))
	cfg, _ := cust.Config().Lookup("email")
	assert.Equal(t, "email", cfg.Validator)
	assert.True(t, cust.Config().HasTabs())

	order := reg.MustEntity("shop.Order")
	assert.Equal(t, "orders_tbl", order.Table)
	fk, ok := order.ColumnProperty("customer_id")
	require.True(t, ok)
	assert.False(t, fk.Column.Nullable)
	tags, _ := order.Property("tags")
	assert.Equal(t, schema.ManyToMany, schema.Classify(tags))
	assert.Equal(t, "order_id", tags.Relation.JoinTable.Local)
	assert.Equal(t, "tag_id", tags.Relation.JoinTable.Remote)

	rush := reg.MustEntity("Rush")
	note, _ := rush.Config().Lookup("note")
	assert.False(t, note.Editable)
	assert.False(t, note.Viewable)
}

func TestParseErrors(t *testing.T) {
	_, err := dsl.Parse(strings.NewReader("  id: int pk\n"), "x.dsl")
	assert.ErrorContains(t, err, "x.dsl:1")

	ents, err := dsl.Parse(strings.NewReader("entity A:\n  id: int pk colour=red\n"), "x.dsl")
	require.NoError(t, err)
	err = dsl.Apply(schema.NewRegistry(), ents)
	assert.ErrorContains(t, err, `unknown option "colour"`)

	ents, err = dsl.Parse(strings.NewReader("entity A:\n  id: money pk\n"), "x.dsl")
	require.NoError(t, err)
	assert.ErrorContains(t, dsl.Apply(schema.NewRegistry(), ents), `unknown type "money"`)
}

func TestLoadAllEntities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.dsl"), []byte("module m\nentity B:\n  id: int pk\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.dsl"), []byte("module m\nentity A:\n  id: int pk\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("entity X:\n"), 0o644))

	ents, err := dsl.LoadAllEntities(dir)
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "B", ents[0].Name)
	assert.Equal(t, "A", ents[1].Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.dsl"), []byte("module m\nentity A:\n  id: int pk\n"), 0o644))
	_, err = dsl.LoadAllEntities(dir)
	assert.ErrorContains(t, err, `duplicate entity "A"`)
}
