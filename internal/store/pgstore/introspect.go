package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"autoform/internal/schema"
)

type dbColumn struct {
	name, dataType string
	nullable       bool
}

type dbForeignKey struct {
	column, toTable string
}

type dbTable struct {
	name    string
	columns []dbColumn
	pks     []string
	fks     []dbForeignKey
	unique  map[string]bool // колонки с одиночным уникальным ограничением
}

// mapColumnType переводит data_type из information_schema в тип колонки.
func mapColumnType(dataType string) (schema.ColumnType, bool) {
	switch strings.ToLower(dataType) {
	case "text", "character varying", "character", "citext":
		return schema.String, true
	case "bigint", "integer", "smallint":
		return schema.Int, true
	case "double precision", "real", "numeric":
		return schema.Float, true
	case "boolean":
		return schema.Bool, true
	case "date":
		return schema.Date, true
	case "timestamp with time zone", "timestamp without time zone":
		return schema.DateTime, true
	case "bytea":
		return schema.Binary, true
	case "uuid":
		return schema.UUID, true
	}
	return "", false
}

// Introspect объявляет в reg сущности по таблицам схемы dbSchema (обычно "public").
// Имя сущности совпадает с именем таблицы. Внешний ключ становится связью
// many-to-one с обратной коллекцией, а уникальный внешний ключ — одиночной
// обратной связью (one-to-one). Таблица из двух ключевых колонок-ссылок
// становится таблицей связей many-to-many. Колонки неизвестных типов пропускаются.
func Introspect(ctx context.Context, db *sql.DB, reg *schema.Registry, module, dbSchema string) error {
	tables, err := loadTables(ctx, db, dbSchema)
	if err != nil {
		return err
	}
	links := map[string][]dbTable{}
	for _, t := range tables {
		if isJoinTable(t) {
			links[t.fks[0].toTable] = append(links[t.fks[0].toTable], t)
		}
	}
	for _, t := range tables {
		if isJoinTable(t) {
			continue
		}
		b := reg.Declare(t.name).Module(module).Table(t.name)
		pk := map[string]bool{}
		for _, n := range t.pks {
			pk[n] = true
		}
		label := ""
		for _, c := range t.columns {
			typ, ok := mapColumnType(c.dataType)
			if !ok {
				continue
			}
			var opts []schema.FieldOption
			if pk[c.name] {
				opts = append(opts, schema.PrimaryKey())
			}
			if !c.nullable {
				opts = append(opts, schema.NotNull())
			}
			if t.unique[c.name] {
				opts = append(opts, schema.Unique())
			}
			if label == "" && typ == schema.String && !pk[c.name] {
				label = c.name
				b.Label(c.name)
			}
			b.Column(c.name, typ, opts...)
		}
		for _, fk := range t.fks {
			key := strings.TrimSuffix(fk.column, "_id")
			if key == fk.column {
				key += "_ref"
			}
			single := t.unique[fk.column]
			backref := t.name
			if single {
				backref = strings.TrimSuffix(t.name, "s")
			}
			b.ManyToOne(key, fk.toTable, fk.column, schema.Backref(backref, !single))
		}
		for _, jt := range links[t.name] {
			local, remote := jt.fks[0], jt.fks[1]
			b.ManyToMany(remote.toTable, remote.toTable,
				schema.JoinTable{Name: jt.name, Local: local.column, Remote: remote.column},
				schema.Backref(t.name, true))
		}
	}
	return nil
}

// isJoinTable: ровно две колонки, обе внешние ключи и вместе первичный ключ.
func isJoinTable(t dbTable) bool {
	if len(t.columns) != 2 || len(t.fks) != 2 || len(t.pks) != 2 {
		return false
	}
	in := map[string]bool{t.fks[0].column: true, t.fks[1].column: true}
	return in[t.pks[0]] && in[t.pks[1]] && t.fks[0].toTable != t.fks[1].toTable
}

func loadTables(ctx context.Context, db *sql.DB, dbSchema string) ([]dbTable, error) {
	names, err := queryStrings(ctx, db, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, dbSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	out := make([]dbTable, 0, len(names))
	for _, name := range names {
		t := dbTable{name: name, unique: map[string]bool{}}
		if t.columns, err = loadColumns(ctx, db, dbSchema, name); err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", name, err)
		}
		if t.pks, err = queryStrings(ctx, db, `
			SELECT kcu.column_name
			FROM information_schema.key_column_usage kcu
			JOIN information_schema.table_constraints tc
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND kcu.table_schema = $1
				AND kcu.table_name = $2
			ORDER BY kcu.ordinal_position`, dbSchema, name); err != nil {
			return nil, fmt.Errorf("failed to get primary keys for table %s: %w", name, err)
		}
		if t.fks, err = loadForeignKeys(ctx, db, dbSchema, name); err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", name, err)
		}
		uniq, err := queryStrings(ctx, db, `
			SELECT min(kcu.column_name)
			FROM information_schema.key_column_usage kcu
			JOIN information_schema.table_constraints tc
				ON kcu.constraint_name = tc.constraint_name
				AND kcu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
				AND kcu.table_schema = $1
				AND kcu.table_name = $2
			GROUP BY tc.constraint_name
			HAVING count(*) = 1`, dbSchema, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get unique constraints for table %s: %w", name, err)
		}
		for _, c := range uniq {
			t.unique[c] = true
		}
		out = append(out, t)
	}
	return out, nil
}

func queryStrings(ctx context.Context, db *sql.DB, q string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadColumns(ctx context.Context, db *sql.DB, dbSchema, table string) ([]dbColumn, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, dbSchema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dbColumn
	for rows.Next() {
		var c dbColumn
		var nullable string
		if err := rows.Scan(&c.name, &c.dataType, &nullable); err != nil {
			return nil, err
		}
		c.nullable = nullable == "YES"
		out = append(out, c)
	}
	return out, rows.Err()
}

func loadForeignKeys(ctx context.Context, db *sql.DB, dbSchema, table string) ([]dbForeignKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT kcu1.column_name, kcu2.table_name, kcu1.ordinal_position
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu1
			ON kcu1.constraint_name = rc.constraint_name
			AND kcu1.table_schema = rc.constraint_schema
		JOIN information_schema.key_column_usage kcu2
			ON kcu2.constraint_name = rc.unique_constraint_name
			AND kcu2.table_schema = rc.unique_constraint_schema
			AND kcu2.ordinal_position = kcu1.ordinal_position
		WHERE kcu1.table_schema = $1 AND kcu1.table_name = $2
		ORDER BY kcu1.ordinal_position, kcu1.column_name`, dbSchema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dbForeignKey
	for rows.Next() {
		var fk dbForeignKey
		var pos int
		if err := rows.Scan(&fk.column, &fk.toTable, &pos); err != nil {
			return nil, err
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}
