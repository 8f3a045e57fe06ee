package pgstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/store/pgstore"
	"autoform/internal/testmodel"
)

func TestGenerateDDL(t *testing.T) {
	ddl, err := pgstore.GenerateDDL(testmodel.New())
	require.NoError(t, err)
	require.Contains(t, ddl, "000_tables")

	tables := ddl["000_tables"]
	assert.Contains(t, tables, `create table if not exists "tests" (`)
	assert.Contains(t, tables, `"id" bigint generated by default as identity`)
	assert.Contains(t, tables, `"other_id" bigint not null`)
	assert.Contains(t, tables, `create table if not exists "users" (`)

	assert.Contains(t, ddl["100_join_tables"], `create table if not exists "user_groups"`)
	assert.Equal(t, 1, strings.Count(ddl["100_join_tables"], `"user_groups" (`), "join table is created once")

	fks := ddl["200_foreign_keys"]
	assert.Contains(t, fks, `alter table "tests" add constraint "tests_other_id_fk" foreign key ("other_id") references "others" ("id")`)
	assert.Contains(t, fks, `references "groups" ("id")`)
}
