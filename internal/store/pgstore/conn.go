package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 5 * time.Second

// Open разбирает url и открывает пул database/sql поверх драйвера pgx.
func Open(url string) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return OpenContext(ctx, url)
}

// OpenContext — Open с контекстом для проверки соединения.
func OpenContext(ctx context.Context, url string) (*sql.DB, error) {
	cc, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	db := stdlib.OpenDB(*cc)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s@%s: %w", cc.User, cc.Host, err)
	}
	return db, nil
}
