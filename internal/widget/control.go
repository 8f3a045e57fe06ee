// Package widget — дерево контролов формы: реестр фабрик по имени,
// разбор и проверка вложенных данных запроса, описание дерева для отрисовки.
package widget

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"autoform/internal/schema"
	"autoform/internal/validate"
)

// Layout — форма значения контрола.
type Layout int

const (
	Leaf   Layout = iota // одно значение
	Fields               // карта по ID дочерних контролов
	Rows                 // список карт, по строке на запись
)

// Source лениво строит дочерние контролы (автоматическая композиция по сущности).
type Source interface {
	Children() ([]*Control, error)
}

// Control — узел дерева. Пустой ID означает контейнер без идентификатора:
// он не даёт сегмента в составном ID и его значение сливается с родителем.
type Control struct {
	ID              string
	Type            string
	Label           string
	Entity          *schema.Entity
	Required        bool
	Validator       validate.Validator
	ReverseProperty string
	Tab             string
	Attrs           map[string]string
	Children        []*Control
	Source          Source

	Layout        Layout
	ReadOnly      bool // только отображение, в запросе не разбирается
	Choices       bool // варианты выбора: записи Entity
	Embedded      bool // вложенная one-to-one подформа, в табах без обёртки
	SkipEmptyRows bool
}

// Kids возвращает дочерние контролы, при необходимости запуская композицию.
func (c *Control) Kids() ([]*Control, error) {
	if c.Source != nil {
		return c.Source.Children()
	}
	return c.Children, nil
}

// IsNone — контрол-заглушка, подавляющий поле.
func (c *Control) IsNone() bool { return c.Type == None }

// Path — составной ID: сегменты через ':' без пустых.
func Path(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

var wordRe = regexp.MustCompile(`[A-Z][a-z0-9]+|[a-z0-9]+|[A-Z0-9]+`)

// Label делает из имени поля или сущности подпись: user_name → "User Name".
func Label(name string) string {
	title := cases.Title(language.Und)
	words := wordRe.FindAllString(name, -1)
	for i, w := range words {
		words[i] = title.String(w)
	}
	return strings.Join(words, " ")
}
