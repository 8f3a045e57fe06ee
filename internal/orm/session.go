package orm

import (
	"context"
	"fmt"
	"strings"

	"autoform/internal/schema"
)

// Session — единица работы одного запроса. Не потокобезопасна.
type Session struct {
	ctx      context.Context
	tx       Tx
	reg      *schema.Registry
	identity map[*schema.Entity]map[string]*Record
	pending  []*Record
	tracked  map[*Record]bool
	closed   bool
	flushing bool
}

// Open начинает транзакцию и возвращает сессию.
func Open(ctx context.Context, b Backend, reg *schema.Registry) (*Session, error) {
	tx, err := b.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Session{
		ctx:      ctx,
		tx:       tx,
		reg:      reg,
		identity: map[*schema.Entity]map[string]*Record{},
		tracked:  map[*Record]bool{},
	}, nil
}

func (s *Session) Context() context.Context   { return s.ctx }
func (s *Session) Registry() *schema.Registry { return s.reg }
func (s *Session) Closed() bool               { return s.closed }

// New создаёт запись, которая будет вставлена при flush.
func (s *Session) New(e *schema.Entity) *Record {
	r := newRecord(s, e, Row{})
	r.isNew = true
	s.track(r)
	return r
}

// Delete помечает запись на удаление.
func (s *Session) Delete(r *Record) {
	r.deleted = true
	s.track(r)
}

func (s *Session) track(r *Record) {
	if !s.tracked[r] {
		s.tracked[r] = true
		s.pending = append(s.pending, r)
	}
}

// Commit сбрасывает изменения и фиксирует транзакцию.
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.Flush(); err != nil {
		_ = s.Rollback()
		return err
	}
	s.closed = true
	return s.tx.Commit()
}

// Rollback откатывает транзакцию; повторный вызов безопасен.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.tracked = map[*Record]bool{}
	return s.tx.Rollback()
}

func identityKey(e *schema.Entity, values Row) (string, bool) {
	pks := e.PrimaryKeys()
	if len(pks) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(pks))
	for _, p := range pks {
		v, ok := values[p.Column.Name]
		if !ok || v == nil {
			return "", false
		}
		parts = append(parts, schema.FormatValue(v))
	}
	return strings.Join(parts, "\x00"), true
}

func (s *Session) lookup(e *schema.Entity, values Row) *Record {
	key, ok := identityKey(e, values)
	if !ok {
		return nil
	}
	return s.identity[e][key]
}

func (s *Session) register(r *Record) {
	key, ok := identityKey(r.e, r.values)
	if !ok {
		return
	}
	m := s.identity[r.e]
	if m == nil {
		m = map[string]*Record{}
		s.identity[r.e] = m
	}
	m[key] = r
}

func (s *Session) forget(r *Record) {
	if key, ok := identityKey(r.e, r.values); ok {
		delete(s.identity[r.e], key)
	}
}

// materialize возвращает запись из карты идентичности или создаёт её из строки.
func (s *Session) materialize(e *schema.Entity, row Row) *Record {
	if r := s.lookup(e, row); r != nil {
		return r
	}
	r := newRecord(s, e, row)
	s.register(r)
	return r
}
