// Package validate — валидаторы значений формы: скалярные по имени
// и валидаторы связей, которые ищут записи в сессии.
package validate

import (
	"fmt"
	"sort"
	"sync"

	"autoform/internal/orm"
)

// Validator переводит значение формы во внутреннее представление и обратно.
// Ошибка пользовательского ввода — *FieldError; любая другая ошибка фатальна.
type Validator interface {
	ToInternal(s *orm.Session, raw any) (any, error)
	ToExternal(s *orm.Session, value any) (any, error)
}

// Factory строит валидатор с учётом обязательности поля.
type Factory func(required bool) Validator

// Registry — валидаторы по имени (для переопределений в настройках полей).
type Registry struct {
	mu sync.RWMutex
	m  map[string]Factory
}

// NewRegistry возвращает реестр со встроенными валидаторами.
func NewRegistry() *Registry {
	r := &Registry{m: map[string]Factory{}}
	r.Register("required", func(bool) Validator { return Required{} })
	for name, typ := range typedNames {
		typ := typ
		r.Register(name, func(req bool) Validator { return Typed{Type: typ, Required: req} })
	}
	r.Register("email", func(req bool) Validator { return Tagged{Tag: "email", Required: req} })
	r.Register("ip", func(req bool) Validator { return Tagged{Tag: "ip", Required: req} })
	r.Register("url", func(req bool) Validator { return Tagged{Tag: "url", Required: req} })
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[name] = f
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.m[name]
	return ok
}

// Build создаёт валидатор по имени.
func (r *Registry) Build(name string, required bool) (Validator, error) {
	r.mu.RLock()
	f, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", name)
	}
	return f(required), nil
}

// Names — зарегистрированные имена, по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
