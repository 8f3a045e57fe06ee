// Package page — страницы форм и списков поверх сессии запроса:
// загрузка записи, разбор и проверка формы, сохранение вложенных данных.
package page

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"autoform/internal/compose"
	"autoform/internal/nested"
	"autoform/internal/orm"
	"autoform/internal/schema"
	"autoform/internal/validate"
	"autoform/internal/widget"
)

// maxUpload — предел размера одного файла формы.
const maxUpload = 10 << 20

// DbPage — страница, привязанная к сущности.
type DbPage struct {
	Entity *schema.Entity
	Title  string
}

func NewDbPage(e *schema.Entity) DbPage {
	return DbPage{Entity: e, Title: widget.Label(e.Name)}
}

// FormPage — форма создания и редактирования записи.
type FormPage struct {
	DbPage
	Form     *widget.Control
	Redirect string
}

// NewFormPage строит страницу с автоформой сущности e; authored — контролы,
// которые заменяют или дополняют сгенерированные.
func NewFormPage(k *compose.Kit, e *schema.Entity, authored ...*widget.Control) (*FormPage, error) {
	form, err := k.Widgets.Build(widget.TableForm, widget.Args{Entity: e, Children: authored})
	if err != nil {
		return nil, err
	}
	if _, err := form.Kids(); err != nil {
		return nil, err
	}
	return &FormPage{DbPage: NewDbPage(e), Form: form}, nil
}

// FetchData ищет запись по параметрам запроса; без параметров — nil (новая запись).
// Параметры, не являющиеся колонками сущности, пропускаются.
func (p *FormPage) FetchData(s *orm.Session, q url.Values) (*orm.Record, error) {
	filter := map[string]any{}
	for key, vals := range q {
		prop, ok := p.Entity.Property(key)
		if !ok || prop.Column == nil || len(vals) == 0 {
			continue
		}
		filter[key] = vals[0]
	}
	if len(filter) == 0 {
		return nil, nil
	}
	return s.Query(p.Entity).FilterBy(filter).First()
}

// ValidatedRequest сохраняет проверенные данные формы и фиксирует сессию.
// Ключ записи берётся из параметра ?<pk>= или ?id=.
func (p *FormPage) ValidatedRequest(s *orm.Session, q url.Values, data map[string]any) (*orm.Record, error) {
	if pk, err := p.Entity.PrimaryKey(); err == nil {
		v := q.Get(pk.Key)
		if v == "" {
			v = q.Get("id")
		}
		if v != "" {
			data[pk.Key] = v
		}
	}
	rec, err := nested.CreateOrUpdate(s, p.Entity, data, true)
	if err != nil {
		return nil, err
	}
	if err := s.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Handle обслуживает GET (описание формы со значениями) и POST (сохранение).
func (p *FormPage) Handle(c *gin.Context) {
	s := SessionFrom(c)
	if s == nil {
		fail(c, errors.New("no session in request context"))
		return
	}
	q := c.Request.URL.Query()

	if c.Request.Method != http.MethodPost {
		rec, err := p.FetchData(s, q)
		if err != nil {
			fail(c, err)
			return
		}
		node, err := widget.Describe(s, p.Form, valueOf(rec), nil)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"title": p.Title, "form": node})
		return
	}

	raw, err := formData(c, p.Form.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid form data", "details": err.Error()})
		return
	}
	out, errs, err := widget.Validate(s, p.Form, raw)
	if err != nil {
		fail(c, err)
		return
	}
	if len(errs) > 0 {
		node, err := widget.Describe(s, p.Form, raw, errs)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"title": p.Title, "errors": errs, "form": node})
		return
	}
	data, _ := out.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	rec, err := p.ValidatedRequest(s, q, data)
	if err != nil {
		fail(c, err)
		return
	}
	if p.Redirect != "" {
		c.Redirect(http.StatusFound, p.Redirect)
		return
	}
	id, err := rec.ID()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": schema.FormatValue(id)})
}

// ListPage — список всех записей сущности, только чтение.
type ListPage struct {
	DbPage
	Grid    *widget.Control
	NewLink string
}

func (p *ListPage) FetchData(s *orm.Session) ([]*orm.Record, error) {
	return s.Query(p.Entity).All()
}

func (p *ListPage) Handle(c *gin.Context) {
	s := SessionFrom(c)
	if s == nil {
		fail(c, errors.New("no session in request context"))
		return
	}
	recs, err := p.FetchData(s)
	if err != nil {
		fail(c, err)
		return
	}
	node, err := widget.Describe(s, p.Grid, recs, nil)
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{"title": p.Title, "grid": node}
	if p.NewLink != "" {
		body["newLink"] = p.NewLink
	}
	c.JSON(http.StatusOK, body)
}

// NewAutoListPage — список с автосеткой по политике просмотра.
func NewAutoListPage(k *compose.Kit, e *schema.Entity) (*ListPage, error) {
	grid, err := k.Widgets.Build(widget.Grid, widget.Args{Entity: e})
	if err != nil {
		return nil, err
	}
	if _, err := grid.Kids(); err != nil {
		return nil, err
	}
	return &ListPage{DbPage: NewDbPage(e), Grid: grid}, nil
}

// ListEditPage — список со ссылками на форму редактирования каждой записи.
type ListEditPage struct {
	*ListPage
	Edit     *FormPage
	EditPath string
}

// NewAutoListPageEdit строит список и форму; editPath — адрес формы.
func NewAutoListPageEdit(k *compose.Kit, e *schema.Entity, editPath string) (*ListEditPage, error) {
	list, err := NewAutoListPage(k, e)
	if err != nil {
		return nil, err
	}
	edit, err := NewFormPage(k, e)
	if err != nil {
		return nil, err
	}
	list.NewLink = editPath
	edit.Redirect = strings.TrimSuffix(editPath, "/")
	return &ListEditPage{ListPage: list, Edit: edit, EditPath: editPath}, nil
}

// EditLink — адрес формы редактирования записи.
func (p *ListEditPage) EditLink(r *orm.Record) (string, error) {
	id, err := r.ID()
	if err != nil {
		return "", err
	}
	return p.EditPath + "?id=" + url.QueryEscape(schema.FormatValue(id)), nil
}

func (p *ListEditPage) Handle(c *gin.Context) {
	s := SessionFrom(c)
	if s == nil {
		fail(c, errors.New("no session in request context"))
		return
	}
	recs, err := p.FetchData(s)
	if err != nil {
		fail(c, err)
		return
	}
	node, err := widget.Describe(s, p.Grid, recs, nil)
	if err != nil {
		fail(c, err)
		return
	}
	links := make([]string, 0, len(recs))
	for _, r := range recs {
		l, err := p.EditLink(r)
		if err != nil {
			fail(c, err)
			return
		}
		links = append(links, l)
	}
	c.JSON(http.StatusOK, gin.H{"title": p.Title, "grid": node, "newLink": p.NewLink, "editLinks": links})
}

func valueOf(r *orm.Record) any {
	if r == nil {
		return nil
	}
	return r
}

// formData собирает тело запроса во вложенную карту; файлы читаются в []byte.
func formData(c *gin.Context, root string) (map[string]any, error) {
	ct := c.ContentType()
	if ct == gin.MIMEJSON {
		var m map[string]any
		if err := c.ShouldBindJSON(&m); err != nil {
			return nil, err
		}
		return m, nil
	}
	if strings.HasPrefix(ct, gin.MIMEMultipartPOSTForm) {
		if err := c.Request.ParseMultipartForm(maxUpload); err != nil {
			return nil, err
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	data := widget.Unflatten(c.Request.PostForm, root)
	if mf := c.Request.MultipartForm; mf != nil {
		keys := make([]string, 0, len(mf.File))
		for k := range mf.File {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fh := mf.File[key]
			if len(fh) == 0 || fh[0].Size == 0 {
				continue
			}
			if fh[0].Size > maxUpload {
				return nil, fmt.Errorf("%s: file too large", key)
			}
			f, err := fh[0].Open()
			if err != nil {
				return nil, err
			}
			b, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, err
			}
			setPath(data, key, root, b)
		}
	}
	return data, nil
}

// setPath кладёт b в data по составному имени поля key.
func setPath(data map[string]any, key, root string, b []byte) {
	if root != "" {
		if !strings.HasPrefix(key, root+":") {
			return
		}
		key = strings.TrimPrefix(key, root+":")
	}
	parts := strings.Split(key, ":")
	node := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = b
}

// fail отвечает на фатальную ошибку; транзакция запроса откатывается.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	var ce *schema.ConfigError
	var fe *validate.FieldError
	switch {
	case errors.As(err, &ce):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Form configuration error", "details": err.Error()})
	case errors.Is(err, nested.ErrSurrogateWithKey):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found", "details": err.Error()})
	case errors.Is(err, nested.ErrMixedList), errors.Is(err, nested.ErrUnknownRelation),
		errors.Is(err, orm.ErrUnknownProperty), errors.Is(err, orm.ErrTypeMismatch), errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid data", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}
