package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/compose"
	"autoform/internal/schema"
	"autoform/internal/validate"
	"autoform/internal/widget"
)

// device — сущность со всеми типами колонок.
func device(t *testing.T) *schema.Entity {
	t.Helper()
	r := schema.NewRegistry()
	r.Declare("Device").Label("title").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("title", schema.String, schema.NotNull()).
		Column("notes", schema.Text).
		Column("slots", schema.Int, schema.NotNull()).
		Column("weight", schema.Float).
		Column("bought", schema.Date).
		Column("seen_at", schema.DateTime).
		Column("firmware", schema.Binary).
		Column("serial", schema.UUID).
		Column("online", schema.Bool, schema.NotNull()).
		Column("ipaddress", schema.String).
		Column("email", schema.String).
		Column("password", schema.String)
	require.NoError(t, r.Finalize())
	return r.MustEntity("Device")
}

func TestEditTypeTable(t *testing.T) {
	e := device(t)
	k := compose.NewKit()

	cases := []struct {
		key       string
		widget    string
		validator validate.Validator
	}{
		{"title", widget.Text, validate.Required{}},
		{"notes", widget.Text, nil},
		{"slots", widget.Text, validate.Typed{Type: schema.Int, Required: true}},
		{"weight", widget.Text, validate.Typed{Type: schema.Float}},
		{"bought", widget.DatePicker, validate.Typed{Type: schema.Date}},
		{"seen_at", widget.DateTime, validate.Typed{Type: schema.DateTime}},
		{"firmware", widget.File, nil},
		{"serial", widget.Text, validate.Typed{Type: schema.UUID}},
		{"online", widget.CheckBox, validate.Typed{Type: schema.Bool}},
		{"ipaddress", widget.Text, validate.Tagged{Tag: "ip"}},
		{"email", widget.Text, validate.Tagged{Tag: "email"}},
		{"password", widget.Password, nil},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			p, ok := e.Property(tc.key)
			require.True(t, ok)
			c, err := k.Edit.Factory(p, e.Config())
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, tc.key, c.ID)
			assert.Equal(t, tc.widget, c.Type)
			assert.Equal(t, tc.validator, c.Validator)
		})
	}

	id, _ := e.Property("id")
	c, err := k.Edit.Factory(id, e.Config())
	require.NoError(t, err)
	assert.Nil(t, c, "primary key is not edited")
}

func TestViewDefaultsToLabel(t *testing.T) {
	e := device(t)
	k := compose.NewKit()
	for _, key := range []string{"slots", "bought", "firmware", "ipaddress"} {
		p, _ := e.Property(key)
		c, err := k.View.Factory(p, e.Config())
		require.NoError(t, err)
		assert.Equal(t, widget.LabelField, c.Type, key)
		assert.True(t, c.ReadOnly, key)
	}
}

func TestOverrideWinsOverTypeTable(t *testing.T) {
	e := device(t)
	k := compose.NewKit()
	slots, _ := e.Property("slots")
	cfg := schema.ConfigMap{"slots": schema.NewFieldConfig(schema.Widget(widget.TextArea), schema.Validator("float"))}

	c, err := k.Edit.Factory(slots, cfg)
	require.NoError(t, err)
	assert.Equal(t, widget.TextArea, c.Type)
	assert.Equal(t, validate.Typed{Type: schema.Float, Required: true}, c.Validator)
}
