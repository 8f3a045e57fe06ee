package page_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoform/internal/compose"
	"autoform/internal/orm"
	"autoform/internal/page"
	"autoform/internal/schema"
	"autoform/internal/store/memstore"
	"autoform/internal/testmodel"
)

func init() { gin.SetMode(gin.TestMode) }

type env struct {
	reg *schema.Registry
	st  *memstore.Store
	kit *compose.Kit
	r   *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{reg: testmodel.New(), st: memstore.New(), kit: compose.NewKit()}
	e.r = gin.New()
	e.r.Use(page.Transactional(
		func() orm.Backend { return e.st },
		func(*gin.Context) *schema.Registry { return e.reg },
	))
	return e
}

func (e *env) seedOther(t *testing.T, names ...string) {
	t.Helper()
	s, err := orm.Open(context.Background(), e.st, e.reg)
	require.NoError(t, err)
	for _, n := range names {
		require.NoError(t, s.New(e.reg.MustEntity("Other")).Set("name", n))
	}
	require.NoError(t, s.Commit())
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func postForm(path string, v url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestCommitVeto(t *testing.T) {
	assert.False(t, page.CommitVeto(200))
	assert.False(t, page.CommitVeto(302))
	assert.True(t, page.CommitVeto(199))
	assert.True(t, page.CommitVeto(400))
	assert.True(t, page.CommitVeto(500))
}

func TestTransactionalRollsBackOnVeto(t *testing.T) {
	e := newEnv(t)
	other := e.reg.MustEntity("Other")
	e.r.POST("/ok", func(c *gin.Context) {
		require.NoError(t, page.SessionFrom(c).New(other).Set("name", "kept"))
		c.Status(http.StatusCreated)
	})
	e.r.POST("/bad", func(c *gin.Context) {
		require.NoError(t, page.SessionFrom(c).New(other).Set("name", "lost"))
		c.Status(http.StatusConflict)
	})

	assert.Equal(t, http.StatusCreated, e.do(httptest.NewRequest(http.MethodPost, "/ok", nil)).Code)
	assert.Equal(t, http.StatusConflict, e.do(httptest.NewRequest(http.MethodPost, "/bad", nil)).Code)
	assert.Equal(t, 1, e.st.Len(other))
}

func TestFormPageCreate(t *testing.T) {
	e := newEnv(t)
	e.seedOther(t, "o")
	fp, err := page.NewFormPage(e.kit, e.reg.MustEntity("Test"))
	require.NoError(t, err)
	assert.Equal(t, "Test", fp.Title)
	e.r.Any("/forms/test", fp.Handle)

	w := e.do(postForm("/forms/test", url.Values{"name": {"first"}, "other": {"1"}}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.OK)
	assert.Equal(t, "1", out.ID)
	assert.Equal(t, 1, e.st.Len(e.reg.MustEntity("Test")))

	w = e.do(httptest.NewRequest(http.MethodGet, "/forms/test?id=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"first"`)
}

func TestFormPageValidationErrors(t *testing.T) {
	e := newEnv(t)
	fp, err := page.NewFormPage(e.kit, e.reg.MustEntity("Test"))
	require.NoError(t, err)
	e.r.POST("/forms/test", fp.Handle)

	w := e.do(postForm("/forms/test", url.Values{"name": {""}, "other": {"9"}}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var out struct {
		Errors []struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Errors, 2)
	assert.Equal(t, "name", out.Errors[0].Field)
	assert.Equal(t, "required", out.Errors[0].Code)
	assert.Equal(t, "other", out.Errors[1].Field)
	assert.Equal(t, "norel", out.Errors[1].Code)
	assert.Equal(t, 0, e.st.Len(e.reg.MustEntity("Test")))
}

func TestFormPageUpdateNested(t *testing.T) {
	e := newEnv(t)
	fp, err := page.NewFormPage(e.kit, e.reg.MustEntity("User"))
	require.NoError(t, err)
	fp.Redirect = "/lists/user"
	e.r.POST("/forms/user", fp.Handle)

	w := e.do(postForm("/forms/user", url.Values{
		"user_name":            {"ann"},
		"account:account_name": {"main"},
	}))
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/lists/user", w.Header().Get("Location"))
	assert.Equal(t, 1, e.st.Len(e.reg.MustEntity("Account")))

	w = e.do(postForm("/forms/user?id=1", url.Values{
		"user_name":            {"ann"},
		"account:account_name": {"renamed"},
	}))
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, 1, e.st.Len(e.reg.MustEntity("User")))

	w = e.do(postForm("/forms/user?id=7", url.Values{
		"user_name":            {"ghost"},
		"account:account_name": {"none"},
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, e.st.Len(e.reg.MustEntity("User")))
}

func TestListPages(t *testing.T) {
	e := newEnv(t)
	e.seedOther(t, "a", "b")
	lp, err := page.NewAutoListPage(e.kit, e.reg.MustEntity("Other"))
	require.NoError(t, err)
	e.r.GET("/lists/other", lp.Handle)

	w := e.do(httptest.NewRequest(http.MethodGet, "/lists/other", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Grid struct {
			Rows [][]struct {
				Value any `json:"value"`
			} `json:"rows"`
		} `json:"grid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Grid.Rows, 2)
	assert.Equal(t, "a", out.Grid.Rows[0][0].Value)

	le, err := page.NewAutoListPageEdit(e.kit, e.reg.MustEntity("Other"), "/forms/other")
	require.NoError(t, err)
	e.r.GET("/lists/other/edit", le.Handle)
	w = e.do(httptest.NewRequest(http.MethodGet, "/lists/other/edit", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var links struct {
		NewLink   string   `json:"newLink"`
		EditLinks []string `json:"editLinks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &links))
	assert.Equal(t, "/forms/other", links.NewLink)
	assert.Equal(t, []string{"/forms/other?id=1", "/forms/other?id=2"}, links.EditLinks)
}
