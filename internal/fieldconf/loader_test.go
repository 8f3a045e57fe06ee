package fieldconf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/fieldconf"
	"autoform/internal/schema"
)

func TestLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Customer.yaml"), []byte(`
fields:
  email:
    validator: email
  name:
    viewable: false
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("skip"), 0o644))

	ovs, err := fieldconf.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, ovs, 1)
	assert.Equal(t, "Customer", ovs[0].Entity)

	reg := schema.NewRegistry()
	reg.Declare("Customer").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("name", schema.String, schema.Configured(schema.Tab("Main"))).
		Column("email", schema.String)
	require.NoError(t, fieldconf.Apply(reg, ovs))
	require.NoError(t, reg.Finalize())

	cfg := reg.MustEntity("Customer").Config()
	name, _ := cfg.Lookup("name")
	assert.False(t, name.Viewable)
	assert.Equal(t, "Main", name.Tab, "overlay keeps declared settings")
	email, _ := cfg.Lookup("email")
	assert.Equal(t, "email", email.Validator)
	assert.True(t, email.Editable)
}

func TestLoadErrors(t *testing.T) {
	ovs, err := fieldconf.LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, ovs)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("entity: A\nfields:\n  x:\n    colour: red\n"), 0o644))
	_, err = fieldconf.LoadDir(dir)
	assert.Error(t, err)

	reg := schema.NewRegistry()
	reg.Declare("A").Column("id", schema.Int, schema.PrimaryKey())
	err = fieldconf.Apply(reg, []fieldconf.Overlay{{Entity: "B", Fields: map[string]fieldconf.FieldPatch{"x": {}}}})
	assert.ErrorContains(t, err, `unknown entity "B"`)
}
