// Package gormstore — бэкенд orm поверх gorm с драйвером SQLite.
// Таблицы читаются и пишутся картами колонок, без моделей gorm.
package gormstore

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"autoform/internal/orm"
	"autoform/internal/schema"
)

// Open открывает базу SQLite; dsn — путь к файлу или "file::memory:?cache=shared".
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

type Store struct {
	db *gorm.DB

	idMu    sync.Mutex
	entropy io.Reader
}

func New(db *gorm.DB) *Store {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Store{db: db, entropy: ulid.Monotonic(src, 0)}
}

func (s *Store) newULID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) Begin(ctx context.Context) (orm.Tx, error) {
	t := s.db.WithContext(ctx).Begin()
	if t.Error != nil {
		return nil, t.Error
	}
	return &tx{store: s, db: t}, nil
}

type tx struct {
	store *Store
	db    *gorm.DB
}

func ident(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }

// cond строит условие равенства; nil превращается в IS NULL.
func cond(row orm.Row) (string, []any) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	var args []any
	for _, k := range keys {
		if row[k] == nil {
			parts = append(parts, ident(k)+" IS NULL")
			continue
		}
		parts = append(parts, ident(k)+" = ?")
		args = append(args, row[k])
	}
	if len(parts) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(parts, " AND "), args
}

func (t *tx) Select(ctx context.Context, e *schema.Entity, where orm.Row) ([]orm.Row, error) {
	cols := e.Columns()
	names := make([]string, len(cols))
	for i, p := range cols {
		names[i] = p.Column.Name
	}
	var order []string
	for _, p := range e.PrimaryKeys() {
		order = append(order, ident(p.Column.Name))
	}
	q, args := cond(where)
	var rows []map[string]any
	err := t.db.WithContext(ctx).Table(e.Table).Select(names).Where(q, args...).
		Order(strings.Join(order, ", ")).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", e.Name, err)
	}
	out := make([]orm.Row, len(rows))
	for i, r := range rows {
		out[i] = orm.Row(r)
	}
	return out, nil
}

func (t *tx) Insert(ctx context.Context, e *schema.Entity, row orm.Row) (orm.Row, error) {
	values := map[string]any{}
	gen := orm.Row{}
	rowid := ""
	for _, p := range e.Columns() {
		c := p.Column
		v := row[c.Name]
		if v == nil && c.PrimaryKey {
			switch c.Type {
			case schema.Int:
				rowid = c.Name
				continue
			case schema.UUID:
				v = uuid.NewString()
			default:
				v = t.store.newULID()
			}
			gen[c.Name] = v
		}
		values[c.Name] = v
	}
	db := t.db.WithContext(ctx)
	if err := db.Table(e.Table).Create(values).Error; err != nil {
		return nil, fmt.Errorf("insert %s: %w", e.Name, err)
	}
	if rowid != "" {
		var id int64
		if err := db.Raw("SELECT last_insert_rowid()").Scan(&id).Error; err != nil {
			return nil, err
		}
		gen[rowid] = id
	}
	return gen, nil
}

func (t *tx) Update(ctx context.Context, e *schema.Entity, key orm.Row, values orm.Row) error {
	if len(values) == 0 {
		return nil
	}
	q, args := cond(key)
	res := t.db.WithContext(ctx).Table(e.Table).Where(q, args...).Updates(map[string]any(values))
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", e.Name, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%s: expected one row, affected %d", e.Name, res.RowsAffected)
	}
	return nil
}

func (t *tx) Delete(ctx context.Context, e *schema.Entity, key orm.Row) error {
	q, args := cond(key)
	res := t.db.WithContext(ctx).Exec("DELETE FROM "+ident(e.Table)+" WHERE "+q, args...)
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", e.Name, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%s: expected one row, affected %d", e.Name, res.RowsAffected)
	}
	return nil
}

func (t *tx) Linked(ctx context.Context, jt schema.JoinTable, local any) ([]any, error) {
	var rows []map[string]any
	err := t.db.WithContext(ctx).Table(jt.Name).Select(jt.Remote).
		Where(ident(jt.Local)+" = ?", local).Order(ident(jt.Remote)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[jt.Remote]
	}
	return out, nil
}

func (t *tx) Link(ctx context.Context, jt schema.JoinTable, local, remote any) error {
	return t.db.WithContext(ctx).Table(jt.Name).Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]any{jt.Local: local, jt.Remote: remote}).Error
}

func (t *tx) Unlink(ctx context.Context, jt schema.JoinTable, local, remote any) error {
	return t.db.WithContext(ctx).Exec("DELETE FROM "+ident(jt.Name)+" WHERE "+ident(jt.Local)+" = ? AND "+ident(jt.Remote)+" = ?", local, remote).Error
}

func (t *tx) Commit() error   { return t.db.Commit().Error }
func (t *tx) Rollback() error { return t.db.Rollback().Error }
