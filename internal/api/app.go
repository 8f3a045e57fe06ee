package api

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"autoform/internal/compose"
	"autoform/internal/dsl"
	"autoform/internal/fieldconf"
	"autoform/internal/orm"
	"autoform/internal/page"
	"autoform/internal/schema"
)

// State — схема и построенные по ней страницы. Заменяется целиком при перезагрузке.
type State struct {
	Registry *schema.Registry
	Kit      *compose.Kit

	mu    sync.Mutex
	forms map[*schema.Entity]*page.FormPage
	lists map[*schema.Entity]*page.ListEditPage
}

func NewState(reg *schema.Registry) *State {
	return &State{
		Registry: reg,
		Kit:      compose.NewKit(),
		forms:    map[*schema.Entity]*page.FormPage{},
		lists:    map[*schema.Entity]*page.ListEditPage{},
	}
}

// FormPath — адрес формы сущности.
func FormPath(e *schema.Entity) string { return "/forms/" + strings.ToLower(e.Name) }

// ListPath — адрес списка сущности.
func ListPath(e *schema.Entity) string { return "/lists/" + strings.ToLower(e.Name) }

// Form строит страницу формы при первом обращении.
func (s *State) Form(e *schema.Entity) (*page.FormPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fp, ok := s.forms[e]; ok {
		return fp, nil
	}
	fp, err := page.NewFormPage(s.Kit, e)
	if err != nil {
		return nil, err
	}
	fp.Redirect = ListPath(e)
	s.forms[e] = fp
	return fp, nil
}

// List строит страницу списка при первом обращении.
func (s *State) List(e *schema.Entity) (*page.ListEditPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lp, ok := s.lists[e]; ok {
		return lp, nil
	}
	lp, err := page.NewAutoListPageEdit(s.Kit, e, FormPath(e))
	if err != nil {
		return nil, err
	}
	s.lists[e] = lp
	return lp, nil
}

// Loader читает объявления из dslRoot и наложения настроек полей из formsDir
// и возвращает финализированный реестр.
type Loader func(dslRoot, formsDir string) (*schema.Registry, error)

// LoadDSL — Loader по файлам *.dsl и YAML-наложениям.
func LoadDSL(dslRoot, formsDir string) (*schema.Registry, error) {
	ents, err := dsl.LoadAllEntities(dslRoot)
	if err != nil {
		return nil, err
	}
	reg := schema.NewRegistry()
	if err := dsl.Apply(reg, ents); err != nil {
		return nil, err
	}
	if formsDir != "" {
		ovs, err := fieldconf.LoadDir(formsDir)
		if err != nil {
			return nil, err
		}
		if err := fieldconf.Apply(reg, ovs); err != nil {
			return nil, err
		}
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// App — состояние сервера: хранилище и текущая схема.
type App struct {
	Backend  orm.Backend
	Load     Loader
	DSLRoot  string
	FormsDir string

	// Prepare вызывается для новой схемы до замены (например, создание таблиц).
	Prepare func(*schema.Registry) error

	mu    sync.RWMutex
	state *State
}

func NewApp(b orm.Backend, reg *schema.Registry) *App {
	return &App{Backend: b, state: NewState(reg)}
}

func (a *App) State() *State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Swap атомарно заменяет схему; запросы в полёте дорабатывают со старой.
func (a *App) Swap(reg *schema.Registry) *State {
	st := NewState(reg)
	a.mu.Lock()
	a.state = st
	a.mu.Unlock()
	return st
}

const stateKey = "autoform.state"

// withState фиксирует состояние на время запроса.
func (a *App) withState() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(stateKey, a.State())
		c.Next()
	}
}

func stateFrom(c *gin.Context) *State {
	v, _ := c.Get(stateKey)
	st, _ := v.(*State)
	return st
}

// entityParam ищет сущность по параметру :entity без учёта регистра.
func entityParam(c *gin.Context, reg *schema.Registry) (*schema.Entity, error) {
	name := c.Param("entity")
	if e, ok := reg.Entity(name); ok {
		return e, nil
	}
	for _, e := range reg.Entities() {
		if strings.EqualFold(e.Name, name) || strings.EqualFold(e.FQN(), name) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("entity %q not found", name)
}
