package nested_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/nested"
	"autoform/internal/orm"
	"autoform/internal/schema"
	"autoform/internal/store/memstore"
	"autoform/internal/testmodel"
)

func setup(t *testing.T) (*schema.Registry, *memstore.Store, *orm.Session) {
	t.Helper()
	reg := testmodel.New()
	st := memstore.New()
	s, err := orm.Open(context.Background(), st, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Rollback() })
	return reg, st, s
}

func TestCreateNewRelatedRecord(t *testing.T) {
	reg, st, s := setup(t)
	u, err := nested.CreateOrUpdate(s, reg.MustEntity("User"), map[string]any{
		"user_name": "ann",
		"account":   map[string]any{"account_name": "new"},
	}, true)
	require.NoError(t, err)

	acc, err := u.Related("account")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.True(t, acc.IsNew())
	assert.Equal(t, "new", acc.String())

	require.NoError(t, s.Commit())
	assert.Equal(t, 1, st.Len(reg.MustEntity("Account")))
}

func TestMergeIntoExistingInPlace(t *testing.T) {
	reg, _, s := setup(t)
	u, err := nested.CreateOrUpdate(s, reg.MustEntity("User"), map[string]any{
		"user_name": "ann",
		"account":   map[string]any{"account_name": "old"},
	}, true)
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	before, err := u.Related("account")
	require.NoError(t, err)

	_, err = nested.MergeInto(u, map[string]any{"account": map[string]any{"account_name": "renamed"}})
	require.NoError(t, err)
	after, err := u.Related("account")
	require.NoError(t, err)
	assert.Same(t, before, after, "identity preserved")
	assert.Equal(t, "renamed", after.String())

	n, err := s.Query(reg.MustEntity("Account")).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLocateByKey(t *testing.T) {
	reg, _, s := setup(t)
	o := s.New(reg.MustEntity("Other"))
	require.NoError(t, o.Set("name", "o"))
	require.NoError(t, s.Flush())

	tr, err := nested.CreateOrUpdate(s, reg.MustEntity("Test"), map[string]any{
		"name":  "t",
		"other": map[string]any{"id": "1", "name": "changed"},
	}, true)
	require.NoError(t, err)
	parent, err := tr.Related("other")
	require.NoError(t, err)
	assert.Same(t, o, parent)
	assert.Equal(t, "changed", o.String())

	_, err = nested.CreateOrUpdate(s, reg.MustEntity("Other"), map[string]any{"id": "42"}, true)
	assert.ErrorIs(t, err, nested.ErrSurrogateWithKey)

	_, err = nested.CreateOrUpdate(s, reg.MustEntity("Other"), map[string]any{"name": "x"}, false)
	assert.ErrorIs(t, err, nested.ErrKeyRequired)

	made, err := nested.CreateOrUpdate(s, reg.MustEntity("Other"), map[string]any{"id": "42", "name": "x"}, false)
	require.NoError(t, err)
	id, _ := made.ID()
	assert.Equal(t, int64(42), id)
}

func TestEmptyKeyIsAbsent(t *testing.T) {
	reg, _, s := setup(t)
	rec, err := nested.CreateOrUpdate(s, reg.MustEntity("Other"), map[string]any{"id": "", "name": "x"}, true)
	require.NoError(t, err)
	assert.True(t, rec.IsNew())
	require.NoError(t, s.Flush())
	id, _ := rec.ID()
	assert.Equal(t, int64(1), id)
}

func TestListReplacesCollection(t *testing.T) {
	reg, _, s := setup(t)
	o, err := nested.CreateOrUpdate(s, reg.MustEntity("Other"), map[string]any{
		"name": "o",
		"tests": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		},
	}, true)
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	kids, err := o.Collection("tests")
	require.NoError(t, err)
	require.Len(t, kids, 2)

	_, err = nested.MergeInto(o, map[string]any{"tests": []any{map[string]any{"id": "2"}}})
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	kids, err = o.Collection("tests")
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "b", kids[0].String())

	_, err = nested.MergeInto(o, map[string]any{"tests": []any{map[string]any{"name": "c"}, "1"}})
	assert.ErrorIs(t, err, nested.ErrMixedList)

	_, err = nested.MergeInto(o, map[string]any{"name": map[string]any{"x": 1}})
	assert.ErrorIs(t, err, nested.ErrUnknownRelation)
}

func TestScalarsAndRecords(t *testing.T) {
	reg, _, s := setup(t)
	g := s.New(reg.MustEntity("Group"))
	require.NoError(t, g.Set("name", "staff"))
	u, err := nested.CreateOrUpdate(s, reg.MustEntity("User"), map[string]any{
		"user_name": "bob",
		"active":    true,
		"groups":    []*orm.Record{g},
	}, true)
	require.NoError(t, err)
	groups, err := u.Collection("groups")
	require.NoError(t, err)
	assert.Equal(t, []*orm.Record{g}, groups)
	active, _ := u.Get("active")
	assert.Equal(t, true, active)
}
