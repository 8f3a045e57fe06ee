package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ApplyDDL выполняет map[ключ]sql в порядке ключей. Ожидается идемпотентный DDL.
func ApplyDDL(ctx context.Context, db *sql.DB, ddl map[string]string) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, k := range keys {
		for _, stmt := range strings.Split(ddl[k], ";\n") {
			stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
			if stmt == "" {
				continue
			}
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				// 42710 duplicate_object: ограничение уже есть
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42710" {
					log.Printf("DDL skipped (already exists): %s (%s)", pgErr.ConstraintName, strings.TrimSpace(pgErr.Message))
					continue
				}
				return fmt.Errorf("DDL apply failed (%s): %w", k, err)
			}
		}
	}
	return nil
}
