package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/schema"
	"autoform/internal/testmodel"
)

func prop(t *testing.T, r *schema.Registry, entity, key string) *schema.Property {
	t.Helper()
	p, ok := r.MustEntity(entity).Property(key)
	require.True(t, ok, "%s.%s", entity, key)
	return p
}

func TestClassify(t *testing.T) {
	r := testmodel.New()
	cases := []struct {
		entity, key string
		want        schema.Kind
	}{
		{"Test", "name", schema.ColumnKind},
		{"Test", "other", schema.ManyToOne},
		{"Other", "tests", schema.OneToMany},
		{"User", "groups", schema.ManyToMany},
		{"Group", "users", schema.ManyToMany},
		{"User", "account", schema.OneToOne},
		{"Account", "user", schema.OneToOne},
		{"Person", "profile", schema.OneToOne},
		{"Profile", "person", schema.OneToOne},
	}
	for _, tc := range cases {
		t.Run(tc.entity+"."+tc.key, func(t *testing.T) {
			p := prop(t, r, tc.entity, tc.key)
			assert.Equal(t, tc.want, schema.Classify(p))
			// повторная классификация даёт тот же результат
			assert.Equal(t, schema.Classify(p), schema.Classify(p))
		})
	}
}

func TestIsRequired(t *testing.T) {
	r := testmodel.New()
	assert.True(t, schema.IsRequired(prop(t, r, "Test", "name")))
	assert.False(t, schema.IsRequired(prop(t, r, "Test", "notes")))
	assert.True(t, schema.IsRequired(prop(t, r, "Test", "other")), "non-null foreign key")
	assert.False(t, schema.IsRequired(prop(t, r, "Account", "user")), "nullable foreign key")
	assert.False(t, schema.IsRequired(prop(t, r, "Other", "tests")))
	assert.False(t, schema.IsRequired(prop(t, r, "User", "groups")))
	// reverse one-to-one resolves to the owner's primary key, which is not nullable
	assert.True(t, schema.IsRequired(prop(t, r, "User", "account")))
}

func TestReverseKey(t *testing.T) {
	r := testmodel.New()
	k, ok := schema.ReverseKey(prop(t, r, "Test", "other"))
	require.True(t, ok)
	assert.Equal(t, "tests", k)

	k, ok = schema.ReverseKey(prop(t, r, "User", "account"))
	require.True(t, ok)
	assert.Equal(t, "user", k)

	k, ok = schema.ReverseKey(prop(t, r, "Group", "users"))
	require.True(t, ok)
	assert.Equal(t, "groups", k)

	_, ok = schema.ReverseKey(prop(t, r, "Test", "name"))
	assert.False(t, ok)
}

func TestLocalColumnName(t *testing.T) {
	r := testmodel.New()
	name, ok := schema.LocalColumnName(prop(t, r, "Test", "other"))
	require.True(t, ok)
	assert.Equal(t, "other_id", name)

	name, ok = schema.LocalColumnName(prop(t, r, "Profile", "person"))
	require.True(t, ok)
	assert.Equal(t, "id", name)

	_, ok = schema.LocalColumnName(prop(t, r, "Other", "tests"))
	assert.False(t, ok)
}

func TestSortProperties(t *testing.T) {
	r := testmodel.New()
	keys := func(props []*schema.Property) []string {
		out := make([]string, 0, len(props))
		for _, p := range props {
			out = append(out, p.Key)
		}
		return out
	}
	assert.Equal(t, []string{"id", "name", "other_id", "other", "notes"},
		keys(schema.SortProperties(r.MustEntity("Test").Properties())))
	assert.Equal(t, []string{"id", "user_name", "email", "password", "active", "groups", "account"},
		keys(schema.SortProperties(r.MustEntity("User").Properties())))
}

func TestSynthesizedForeignKey(t *testing.T) {
	r := testmodel.New()
	col := prop(t, r, "Account", "user_id")
	require.NotNil(t, col.Column)
	assert.Equal(t, schema.Int, col.Column.Type)
	assert.True(t, col.Column.Nullable)
	assert.Equal(t, "User", col.Column.References)
}

func TestConfigInheritance(t *testing.T) {
	r := testmodel.New()
	animal := r.MustEntity("Animal").Config()
	dog := r.MustEntity("Dog").Config()

	assert.Len(t, animal, 1)
	assert.Len(t, dog, 2)
	assert.True(t, animal["name"].Viewable)
	assert.False(t, dog["name"].Viewable, "subtype entry replaces the inherited one")
	assert.Equal(t, "textarea", dog["breed"].Widget)

	_, ok := r.MustEntity("Dog").Property("kind")
	assert.True(t, ok, "inherited property")
	assert.True(t, r.MustEntity("Dog").IsA(r.MustEntity("Animal")))

	assert.True(t, r.MustEntity("Profile").Config().HasTabs())
	assert.False(t, r.MustEntity("User").Config().HasTabs())
}

func TestAmbiguousReverse(t *testing.T) {
	r := schema.NewRegistry()
	r.Declare("A").
		Column("id", schema.Int, schema.PrimaryKey()).
		OneToMany("first", "B", "a_id").
		OneToMany("second", "B", "a_id")
	r.Declare("B").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("a_id", schema.Int).
		ManyToOne("a", "A", "a_id")

	err := r.Finalize()
	var cerr *schema.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "ambiguous reverse relation")
}

func TestCompositePrimaryKey(t *testing.T) {
	r := schema.NewRegistry()
	r.Declare("Pair").
		Column("a", schema.Int, schema.PrimaryKey()).
		Column("b", schema.Int, schema.PrimaryKey())
	require.NoError(t, r.Finalize())

	_, err := r.MustEntity("Pair").PrimaryKey()
	var cerr *schema.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "composite primary key")
}

func TestUnknownTarget(t *testing.T) {
	r := schema.NewRegistry()
	r.Declare("A").
		Column("id", schema.Int, schema.PrimaryKey()).
		ManyToOne("b", "Missing", "b_id")
	err := r.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown relation target "Missing"`)
}

func TestLookup(t *testing.T) {
	r := testmodel.New()
	e, ok := r.Entity("demo.Test")
	require.True(t, ok)
	assert.Equal(t, "Test", e.Name)

	e, ok = r.Resolve("DEMO", "test")
	require.True(t, ok)
	assert.Equal(t, "tests", e.Table)

	_, ok = r.Entity("nope")
	assert.False(t, ok)
	assert.Equal(t, "users", schema.TableName("User"))
	assert.Equal(t, "e_values", schema.TableName("Values"))
}

func TestCoerce(t *testing.T) {
	v, err := schema.Int.Coerce("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = schema.Int.Coerce(float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = schema.Int.Coerce("x")
	assert.EqualError(t, err, "must be integer")

	v, err = schema.Int.Coerce("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = schema.String.Coerce("")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = schema.Bool.Coerce("on")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = schema.Date.Coerce("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), v)
	assert.Equal(t, "2024-02-29", schema.FormatValue(v))

	v, err = schema.UUID.Coerce("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", v)
}
