package gormstore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/nested"
	"autoform/internal/orm"
	"autoform/internal/store/gormstore"
	"autoform/internal/testmodel"
)

func open(t *testing.T) *gormstore.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gormstore.Open("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gormstore.Migrate(context.Background(), db, testmodel.New()))
	return gormstore.New(db)
}

func TestGenerateDDL(t *testing.T) {
	stmts, err := gormstore.GenerateDDL(testmodel.New())
	require.NoError(t, err)
	all := strings.Join(stmts, "\n")
	assert.Contains(t, all, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, all, `FOREIGN KEY ("other_id") REFERENCES "others" ("id")`)
	assert.Equal(t, 1, strings.Count(all, `CREATE TABLE IF NOT EXISTS "user_groups"`))
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := testmodel.New()
	st := open(t)

	s, err := orm.Open(ctx, st, reg)
	require.NoError(t, err)
	o, err := nested.CreateOrUpdate(s, reg.MustEntity("Other"), map[string]any{
		"name":  "o",
		"tests": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
	}, true)
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	id, err := o.ID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	s, err = orm.Open(ctx, st, reg)
	require.NoError(t, err)
	again, err := s.Query(reg.MustEntity("Other")).Get("1")
	require.NoError(t, err)
	require.NotNil(t, again)
	kids, err := again.Collection("tests")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "a", kids[0].String())

	require.NoError(t, kids[0].Set("notes", "first"))
	s.Delete(kids[1])
	require.NoError(t, s.Commit())

	s, err = orm.Open(ctx, st, reg)
	require.NoError(t, err)
	defer s.Rollback()
	n, err := s.Query(reg.MustEntity("Test")).Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	first, err := s.Query(reg.MustEntity("Test")).Filter("notes", "first").First()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.String())
}

func TestManyToMany(t *testing.T) {
	ctx := context.Background()
	reg := testmodel.New()
	st := open(t)

	s, err := orm.Open(ctx, st, reg)
	require.NoError(t, err)
	g := s.New(reg.MustEntity("Group"))
	require.NoError(t, g.Set("name", "staff"))
	u := s.New(reg.MustEntity("User"))
	require.NoError(t, u.Set("user_name", "ann"))
	require.NoError(t, u.Set("active", true))
	require.NoError(t, u.Set("groups", []*orm.Record{g}))
	require.NoError(t, s.Commit())

	s, err = orm.Open(ctx, st, reg)
	require.NoError(t, err)
	defer s.Rollback()
	grp, err := s.Query(reg.MustEntity("Group")).First()
	require.NoError(t, err)
	users, err := grp.Collection("users")
	require.NoError(t, err)
	require.Len(t, users, 1)
	active, err := users[0].Get("active")
	require.NoError(t, err)
	assert.Equal(t, true, active)
}
