// Package memstore — хранилище в памяти для разработки и тестов.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"autoform/internal/orm"
	"autoform/internal/schema"
)

var ErrDuplicateKey = errors.New("memstore: duplicate primary key")

type table struct {
	keys []string           // порядок вставки
	rows map[string]orm.Row // ключ -> строка
	seq  int64              // последний выданный целочисленный ключ
}

func (t *table) clone() *table {
	out := &table{keys: append([]string(nil), t.keys...), rows: make(map[string]orm.Row, len(t.rows)), seq: t.seq}
	for k, r := range t.rows {
		out.rows[k] = cloneRow(r)
	}
	return out
}

type link struct{ local, remote any }

// Store хранит таблицы сущностей и таблицы связей. Транзакция работает на копии;
// при фиксации изменённые ею таблицы заменяют текущие целиком.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	links  map[string][]link

	idMu    sync.Mutex
	entropy io.Reader
}

func New() *Store {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Store{
		tables:  map[string]*table{},
		links:   map[string][]link{},
		entropy: ulid.Monotonic(src, 0),
	}
}

func (s *Store) newULID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) Begin(ctx context.Context) (orm.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := &tx{store: s, tables: map[string]*table{}, links: map[string][]link{}, dirty: map[string]bool{}}
	for name, t := range s.tables {
		tx.tables[name] = t.clone()
	}
	for name, l := range s.links {
		tx.links[name] = append([]link(nil), l...)
	}
	return tx, nil
}

// Len — число строк в таблице сущности (для тестов и диагностики).
func (s *Store) Len(e *schema.Entity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t := s.tables[e.Table]; t != nil {
		return len(t.keys)
	}
	return 0
}

type tx struct {
	store  *Store
	tables map[string]*table
	links  map[string][]link
	dirty  map[string]bool
	done   bool
}

func (t *tx) table(e *schema.Entity) *table {
	tb := t.tables[e.Table]
	if tb == nil {
		tb = &table{rows: map[string]orm.Row{}}
		t.tables[e.Table] = tb
	}
	return tb
}

func rowKey(e *schema.Entity, row orm.Row) (string, error) {
	pks := e.PrimaryKeys()
	if len(pks) == 0 {
		return "", fmt.Errorf("%s has no primary key", e.Name)
	}
	parts := make([]string, 0, len(pks))
	for _, p := range pks {
		v := row[p.Column.Name]
		if v == nil {
			return "", fmt.Errorf("%s: primary key %s is null", e.Name, p.Key)
		}
		parts = append(parts, schema.FormatValue(v))
	}
	return strings.Join(parts, "\x00"), nil
}

func cloneRow(r orm.Row) orm.Row {
	out := make(orm.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func matches(row, where orm.Row) bool {
	for k, want := range where {
		got := row[k]
		if want == nil || got == nil {
			if want != got {
				return false
			}
			continue
		}
		if schema.FormatValue(got) != schema.FormatValue(want) {
			return false
		}
	}
	return true
}

func (t *tx) Select(ctx context.Context, e *schema.Entity, where orm.Row) ([]orm.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tb := t.table(e)
	var out []orm.Row
	for _, k := range tb.keys {
		if row := tb.rows[k]; matches(row, where) {
			out = append(out, cloneRow(row))
		}
	}
	return out, nil
}

func (t *tx) Insert(ctx context.Context, e *schema.Entity, row orm.Row) (orm.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tb := t.table(e)
	stored := orm.Row{}
	for _, p := range e.Columns() {
		stored[p.Column.Name] = row[p.Column.Name]
	}
	gen := orm.Row{}
	for _, p := range e.PrimaryKeys() {
		name := p.Column.Name
		if stored[name] != nil {
			if n, ok := stored[name].(int64); ok && n > tb.seq {
				tb.seq = n
			}
			continue
		}
		switch p.Column.Type {
		case schema.Int:
			tb.seq++
			stored[name] = tb.seq
		case schema.UUID:
			stored[name] = uuid.NewString()
		default:
			stored[name] = t.store.newULID()
		}
		gen[name] = stored[name]
	}
	key, err := rowKey(e, stored)
	if err != nil {
		return nil, err
	}
	if _, exists := tb.rows[key]; exists {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateKey, e.Name, key)
	}
	tb.rows[key] = stored
	tb.keys = append(tb.keys, key)
	t.dirty[e.Table] = true
	return gen, nil
}

func (t *tx) find(e *schema.Entity, key orm.Row) (string, error) {
	k, err := rowKey(e, key)
	if err != nil {
		return "", err
	}
	if _, ok := t.table(e).rows[k]; !ok {
		return "", fmt.Errorf("%s %v: %w", e.Name, key, errNotFound)
	}
	return k, nil
}

var errNotFound = errors.New("row not found")

func (t *tx) Update(ctx context.Context, e *schema.Entity, key orm.Row, values orm.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := t.find(e, key)
	if err != nil {
		return err
	}
	row := t.table(e).rows[k]
	for col, v := range values {
		row[col] = v
	}
	t.dirty[e.Table] = true
	return nil
}

func (t *tx) Delete(ctx context.Context, e *schema.Entity, key orm.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := t.find(e, key)
	if err != nil {
		return err
	}
	tb := t.table(e)
	delete(tb.rows, k)
	for i, cur := range tb.keys {
		if cur == k {
			tb.keys = append(tb.keys[:i], tb.keys[i+1:]...)
			break
		}
	}
	t.dirty[e.Table] = true
	return nil
}

func (t *tx) Linked(ctx context.Context, jt schema.JoinTable, local any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []any
	for _, l := range t.links[jt.Name] {
		a, b := l.local, l.remote
		if isReversed(jt) {
			a, b = b, a
		}
		if schema.FormatValue(a) == schema.FormatValue(local) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) Link(ctx context.Context, jt schema.JoinTable, local, remote any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if isReversed(jt) {
		local, remote = remote, local
	}
	t.links[jt.Name] = append(t.links[jt.Name], link{local: local, remote: remote})
	t.dirty["link:"+jt.Name] = true
	return nil
}

func (t *tx) Unlink(ctx context.Context, jt schema.JoinTable, local, remote any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if isReversed(jt) {
		local, remote = remote, local
	}
	rows := t.links[jt.Name]
	kept := rows[:0]
	for _, l := range rows {
		if schema.FormatValue(l.local) == schema.FormatValue(local) && schema.FormatValue(l.remote) == schema.FormatValue(remote) {
			continue
		}
		kept = append(kept, l)
	}
	t.links[jt.Name] = kept
	t.dirty["link:"+jt.Name] = true
	return nil
}

// isReversed: строки связи хранятся в каноническом порядке колонок, чтобы обе
// стороны many-to-many видели одни и те же пары.
func isReversed(jt schema.JoinTable) bool { return jt.Local > jt.Remote }

func (t *tx) Commit() error {
	if t.done {
		return errors.New("memstore: transaction already finished")
	}
	t.done = true
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range t.dirty {
		if strings.HasPrefix(name, "link:") {
			jt := strings.TrimPrefix(name, "link:")
			s.links[jt] = t.links[jt]
			continue
		}
		s.tables[name] = t.tables[name]
	}
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}
