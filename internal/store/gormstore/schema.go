package gormstore

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"autoform/internal/schema"
)

func sqliteType(t schema.ColumnType) string {
	switch t {
	case schema.Int, schema.Bool:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "DATETIME"
	case schema.Binary:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// GenerateDDL — CREATE TABLE IF NOT EXISTS для сущностей и таблиц связей.
// Внешние ключи объявляются в самих таблицах: SQLite не умеет ALTER TABLE ADD CONSTRAINT.
func GenerateDDL(reg *schema.Registry) ([]string, error) {
	var out []string
	seenJoin := map[string]bool{}
	for _, e := range reg.Entities() {
		pks := e.PrimaryKeys()
		if len(pks) == 0 {
			return nil, fmt.Errorf("%s: no primary key", e.Name)
		}
		rowid := len(pks) == 1 && pks[0].Column.Type == schema.Int
		var cols, tail []string
		for _, p := range e.Columns() {
			c := p.Column
			def := ident(c.Name) + " " + sqliteType(c.Type)
			switch {
			case rowid && c.PrimaryKey:
				def += " PRIMARY KEY AUTOINCREMENT"
			case !c.Nullable:
				def += " NOT NULL"
			}
			if c.Unique {
				def += " UNIQUE"
			}
			cols = append(cols, def)
			if c.References != "" {
				target, ok := reg.Resolve(e.Module, c.References)
				if !ok {
					return nil, fmt.Errorf("%s.%s: unknown referenced entity %q", e.Name, p.Key, c.References)
				}
				tpk, err := target.PrimaryKey()
				if err != nil {
					return nil, err
				}
				tail = append(tail, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", ident(c.Name), ident(target.Table), ident(tpk.Column.Name)))
			}
		}
		if !rowid {
			names := make([]string, len(pks))
			for i, p := range pks {
				names[i] = ident(p.Column.Name)
			}
			tail = append([]string{"PRIMARY KEY (" + strings.Join(names, ", ") + ")"}, tail...)
		}
		out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", ident(e.Table), strings.Join(append(cols, tail...), ",\n  ")))

		for _, p := range e.Properties() {
			if p.Relation == nil || p.Relation.JoinTable == nil || seenJoin[p.Relation.JoinTable.Name] {
				continue
			}
			jt := p.Relation.JoinTable
			seenJoin[jt.Name] = true
			lpk, err := e.PrimaryKey()
			if err != nil {
				return nil, err
			}
			rpk, err := p.Target().PrimaryKey()
			if err != nil {
				return nil, err
			}
			out = append(out, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s %s NOT NULL,\n  %s %s NOT NULL,\n  PRIMARY KEY (%s, %s)\n)",
				ident(jt.Name), ident(jt.Local), sqliteType(lpk.Column.Type), ident(jt.Remote), sqliteType(rpk.Column.Type),
				ident(jt.Local), ident(jt.Remote)))
		}
	}
	return out, nil
}

// Migrate создаёт недостающие таблицы.
func Migrate(ctx context.Context, db *gorm.DB, reg *schema.Registry) error {
	stmts, err := GenerateDDL(reg)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := db.WithContext(ctx).Exec(s).Error; err != nil {
			return fmt.Errorf("DDL apply failed: %w", err)
		}
	}
	return nil
}
