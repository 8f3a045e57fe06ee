package validate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/orm"
	"autoform/internal/schema"
	"autoform/internal/store/memstore"
	"autoform/internal/testmodel"
	"autoform/internal/validate"
)

func code(t *testing.T, err error) string {
	t.Helper()
	fe, ok := validate.AsFieldError(err)
	require.True(t, ok, "expected FieldError, got %v", err)
	return fe.Code
}

func TestTypedValidators(t *testing.T) {
	reg := validate.NewRegistry()

	v, err := reg.Build("int", true)
	require.NoError(t, err)
	got, err := v.ToInternal(nil, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	_, err = v.ToInternal(nil, "4x")
	assert.Equal(t, validate.ErrTypeMismatch, code(t, err))
	_, err = v.ToInternal(nil, " ")
	assert.Equal(t, validate.ErrRequired, code(t, err))

	v, _ = reg.Build("int", false)
	got, err = v.ToInternal(nil, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	v, _ = reg.Build("bool", false)
	got, err = v.ToInternal(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	v, _ = reg.Build("date", false)
	got, err = v.ToInternal(nil, "2024-02-29")
	require.NoError(t, err)
	ext, err := v.ToExternal(nil, got)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", ext)
	_, ok := got.(time.Time)
	assert.True(t, ok)

	_, err = reg.Build("nope", false)
	assert.Error(t, err)
	assert.Contains(t, reg.Names(), "email")
}

func TestTaggedValidators(t *testing.T) {
	reg := validate.NewRegistry()
	email, _ := reg.Build("email", false)

	got, err := email.ToInternal(nil, " me@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", got)
	_, err = email.ToInternal(nil, "not-an-email")
	assert.Equal(t, validate.ErrInvalid, code(t, err))

	ip, _ := reg.Build("ip", true)
	_, err = ip.ToInternal(nil, "10.0.0.300")
	assert.Equal(t, validate.ErrInvalid, code(t, err))
	_, err = ip.ToInternal(nil, "")
	assert.Equal(t, validate.ErrRequired, code(t, err))
	got, err = ip.ToInternal(nil, "::1")
	require.NoError(t, err)
	assert.Equal(t, "::1", got)
}

func seed(t *testing.T) (*schema.Registry, *orm.Session) {
	t.Helper()
	reg := testmodel.New()
	st := memstore.New()
	s, err := orm.Open(context.Background(), st, reg)
	require.NoError(t, err)
	for _, name := range []string{"a", "b"} {
		r := s.New(reg.MustEntity("Other"))
		require.NoError(t, r.Set("name", name))
	}
	require.NoError(t, s.Flush())
	t.Cleanup(func() { _ = s.Rollback() })
	return reg, s
}

func TestRelated(t *testing.T) {
	reg, s := seed(t)
	v := validate.Related{Entity: reg.MustEntity("Other"), Required: true}

	got, err := v.ToInternal(s, "2")
	require.NoError(t, err)
	rec := got.(*orm.Record)
	assert.Equal(t, "b", rec.String())

	same, err := v.ToInternal(s, rec)
	require.NoError(t, err)
	assert.Same(t, rec, same)

	_, err = v.ToInternal(s, "99")
	assert.Equal(t, validate.ErrNoMatch, code(t, err))
	_, err = v.ToInternal(s, "abc")
	assert.Equal(t, validate.ErrNoMatch, code(t, err))
	_, err = v.ToInternal(s, "")
	assert.Equal(t, validate.ErrRequired, code(t, err))

	ext, err := v.ToExternal(s, rec)
	require.NoError(t, err)
	assert.Equal(t, "2", ext)
	ext, err = v.ToExternal(s, nil)
	require.NoError(t, err)
	assert.Nil(t, ext)

	_, err = v.ToExternal(s, "2")
	assert.Equal(t, validate.ErrTypeMismatch, code(t, err))
	group := s.New(reg.MustEntity("Group"))
	_, err = v.ToExternal(s, group)
	assert.Equal(t, validate.ErrTypeMismatch, code(t, err))
}

func TestRelatedItemsDropsBadElements(t *testing.T) {
	reg, s := seed(t)
	v := validate.RelatedItems{Entity: reg.MustEntity("Other"), Required: true}

	got, err := v.ToInternal(s, []any{"1", "junk", "99", "2"})
	require.NoError(t, err)
	recs := got.([]*orm.Record)
	require.Len(t, recs, 2)

	ext, err := v.ToExternal(s, recs)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ext)

	_, err = v.ToInternal(s, []string{"junk"})
	assert.Equal(t, validate.ErrRequired, code(t, err))
	_, err = v.ToInternal(s, []any{})
	assert.Equal(t, validate.ErrRequired, code(t, err))
	_, err = v.ToInternal(s, nil)
	assert.Equal(t, validate.ErrRequired, code(t, err))

	opt := validate.RelatedItems{Entity: reg.MustEntity("Other")}
	got, err = opt.ToInternal(s, "1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOneToOneStructural(t *testing.T) {
	v := validate.OneToOne{Required: true}
	_, err := v.ToInternal(nil, map[string]any{"a": "", "b": map[string]any{"c": nil}})
	assert.Equal(t, validate.ErrRequired, code(t, err))

	in := map[string]any{"a": "", "b": map[string]any{"c": "x"}}
	got, err := v.ToInternal(nil, in)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	got, err = validate.OneToOne{}.ToInternal(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.True(t, validate.OneToOne{}.Skip(map[string]any{"a": "", "b": nil}))
	assert.False(t, validate.OneToOne{}.Skip(map[string]any{"a": "x"}))
	assert.False(t, v.Skip(nil), "required sub-form is never skipped")
}
