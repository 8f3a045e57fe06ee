// Package orm — минимальная единица работы поверх построчных бэкендов:
// карта идентичности, ленивые связи и упорядоченный по зависимостям flush.
package orm

import (
	"context"
	"errors"

	"autoform/internal/schema"
)

// Row — значения колонок одной строки (ключ — имя колонки).
type Row map[string]any

var (
	ErrSessionClosed   = errors.New("orm: session is closed")
	ErrUnknownProperty = errors.New("orm: unknown property")
	ErrTypeMismatch    = errors.New("orm: value has wrong type")
)

// Backend открывает транзакции хранилища.
type Backend interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx — построчные операции внутри одной транзакции.
// Select сравнивает на равенство; nil в where означает IS NULL.
// Insert возвращает значения, сгенерированные хранилищем (суррогатный ключ).
type Tx interface {
	Select(ctx context.Context, e *schema.Entity, where Row) ([]Row, error)
	Insert(ctx context.Context, e *schema.Entity, row Row) (Row, error)
	Update(ctx context.Context, e *schema.Entity, key Row, values Row) error
	Delete(ctx context.Context, e *schema.Entity, key Row) error

	// Linked возвращает значения jt.Remote для строк связи с jt.Local = local.
	Linked(ctx context.Context, jt schema.JoinTable, local any) ([]any, error)
	Link(ctx context.Context, jt schema.JoinTable, local, remote any) error
	Unlink(ctx context.Context, jt schema.JoinTable, local, remote any) error

	Commit() error
	Rollback() error
}
