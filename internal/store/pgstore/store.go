// Package pgstore — бэкенд orm поверх PostgreSQL (database/sql + pgx).
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"autoform/internal/orm"
	"autoform/internal/schema"
)

// Store — одна таблица на сущность, по строке на запись.
type Store struct {
	db *sql.DB

	idMu    sync.Mutex
	entropy io.Reader
}

func New(db *sql.DB) *Store {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Store{db: db, entropy: ulid.Monotonic(src, 0)}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) newULID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) Begin(ctx context.Context) (orm.Tx, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{store: s, tx: t}, nil
}

type tx struct {
	store *Store
	tx    *sql.Tx
}

// where строит условие равенства; nil превращается в IS NULL.
func where(row orm.Row, args []any) (string, []any) {
	keys := sortedKeys(row)
	if len(keys) == 0 {
		return "", args
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if row[k] == nil {
			parts = append(parts, pq.QuoteIdentifier(k)+" is null")
			continue
		}
		args = append(args, row[k])
		parts = append(parts, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), len(args)))
	}
	return " where " + strings.Join(parts, " and "), args
}

func columnNames(e *schema.Entity) []string {
	cols := e.Columns()
	out := make([]string, len(cols))
	for i, p := range cols {
		out[i] = p.Column.Name
	}
	return out
}

func pkNames(e *schema.Entity) []string {
	pks := e.PrimaryKeys()
	out := make([]string, len(pks))
	for i, p := range pks {
		out[i] = p.Column.Name
	}
	return out
}

func (t *tx) Select(ctx context.Context, e *schema.Entity, w orm.Row) ([]orm.Row, error) {
	names := columnNames(e)
	cond, args := where(w, nil)
	q := fmt.Sprintf("select %s from %s%s order by %s", quote(names...), pq.QuoteIdentifier(e.Table), cond, quote(pkNames(e)...))
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orm.Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(orm.Row, len(names))
		for i, n := range names {
			row[n] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (t *tx) Insert(ctx context.Context, e *schema.Entity, row orm.Row) (orm.Row, error) {
	gen := orm.Row{}
	var names []string
	var args []any
	for _, p := range e.Columns() {
		c := p.Column
		v := row[c.Name]
		if v == nil && c.PrimaryKey {
			switch c.Type {
			case schema.Int:
				continue // identity
			case schema.UUID:
				v = uuid.NewString()
			default:
				v = t.store.newULID()
			}
			gen[c.Name] = v
		}
		names = append(names, c.Name)
		args = append(args, v)
	}
	ph := make([]string, len(args))
	for i := range args {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	pks := pkNames(e)
	q := fmt.Sprintf("insert into %s (%s) values (%s) returning %s",
		pq.QuoteIdentifier(e.Table), quote(names...), strings.Join(ph, ", "), quote(pks...))
	if len(names) == 0 {
		q = fmt.Sprintf("insert into %s default values returning %s", pq.QuoteIdentifier(e.Table), quote(pks...))
	}
	vals := make([]any, len(pks))
	ptrs := make([]any, len(pks))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := t.tx.QueryRowContext(ctx, q, args...).Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", e.Name, err)
	}
	for i, n := range pks {
		if row[n] == nil {
			gen[n] = vals[i]
		}
	}
	return gen, nil
}

func (t *tx) Update(ctx context.Context, e *schema.Entity, key orm.Row, values orm.Row) error {
	if len(values) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for _, k := range sortedKeys(values) {
		args = append(args, values[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), len(args)))
	}
	cond, args := where(key, args)
	res, err := t.tx.ExecContext(ctx, fmt.Sprintf("update %s set %s%s", pq.QuoteIdentifier(e.Table), strings.Join(sets, ", "), cond), args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", e.Name, err)
	}
	return expectOne(res, e)
}

func (t *tx) Delete(ctx context.Context, e *schema.Entity, key orm.Row) error {
	cond, args := where(key, nil)
	res, err := t.tx.ExecContext(ctx, fmt.Sprintf("delete from %s%s", pq.QuoteIdentifier(e.Table), cond), args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.Name, err)
	}
	return expectOne(res, e)
}

func expectOne(res sql.Result, e *schema.Entity) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s: expected one row, affected %d", e.Name, n)
	}
	return nil
}

func (t *tx) Linked(ctx context.Context, jt schema.JoinTable, local any) ([]any, error) {
	q := fmt.Sprintf("select %s from %s where %s = $1 order by 1", pq.QuoteIdentifier(jt.Remote), pq.QuoteIdentifier(jt.Name), pq.QuoteIdentifier(jt.Local))
	rows, err := t.tx.QueryContext(ctx, q, local)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *tx) Link(ctx context.Context, jt schema.JoinTable, local, remote any) error {
	q := fmt.Sprintf("insert into %s (%s) values ($1, $2) on conflict do nothing", pq.QuoteIdentifier(jt.Name), quote(jt.Local, jt.Remote))
	_, err := t.tx.ExecContext(ctx, q, local, remote)
	return err
}

func (t *tx) Unlink(ctx context.Context, jt schema.JoinTable, local, remote any) error {
	q := fmt.Sprintf("delete from %s where %s = $1 and %s = $2", pq.QuoteIdentifier(jt.Name), pq.QuoteIdentifier(jt.Local), pq.QuoteIdentifier(jt.Remote))
	_, err := t.tx.ExecContext(ctx, q, local, remote)
	return err
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }

func sortedKeys(r orm.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
