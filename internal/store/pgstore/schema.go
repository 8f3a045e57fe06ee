package pgstore

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"autoform/internal/schema"
)

func sqlType(t schema.ColumnType) (string, error) {
	switch t {
	case schema.String, schema.Text:
		return "text", nil
	case schema.Int:
		return "bigint", nil
	case schema.Float:
		return "double precision", nil
	case schema.Bool:
		return "boolean", nil
	case schema.Date:
		return "date", nil
	case schema.DateTime:
		return "timestamp with time zone", nil
	case schema.Binary:
		return "bytea", nil
	case schema.UUID:
		return "uuid", nil
	}
	return "", fmt.Errorf("unknown type: %s", t)
}

func quote(names ...string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(q, ", ")
}

// GenerateDDL возвращает DDL по сущностям реестра: сначала таблицы
// и таблицы связей, затем внешние ключи. Ключи карты задают порядок применения.
func GenerateDDL(reg *schema.Registry) (map[string]string, error) {
	var tables, joins, fks strings.Builder
	seenJoin := map[string]bool{}

	for _, e := range reg.Entities() {
		pks := e.PrimaryKeys()
		if len(pks) == 0 {
			return nil, fmt.Errorf("%s: no primary key", e.Name)
		}
		var cols []string
		for _, p := range e.Columns() {
			c := p.Column
			typ, err := sqlType(c.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, p.Key, err)
			}
			def := fmt.Sprintf("%s %s", pq.QuoteIdentifier(c.Name), typ)
			switch {
			case len(pks) == 1 && c.PrimaryKey && c.Type == schema.Int:
				def += " generated by default as identity"
			case !c.Nullable:
				def += " not null"
			}
			cols = append(cols, def)
		}
		pkNames := make([]string, len(pks))
		for i, p := range pks {
			pkNames[i] = p.Column.Name
		}
		cols = append(cols, fmt.Sprintf("primary key (%s)", quote(pkNames...)))
		fmt.Fprintf(&tables, "create table if not exists %s (\n  %s\n);\n",
			pq.QuoteIdentifier(e.Table), strings.Join(cols, ",\n  "))

		for _, p := range e.Columns() {
			c := p.Column
			if c.Unique {
				fmt.Fprintf(&tables, "create unique index if not exists %s on %s (%s);\n",
					pq.QuoteIdentifier(e.Table+"_"+c.Name+"_uq"), pq.QuoteIdentifier(e.Table), quote(c.Name))
			}
			if c.References == "" {
				continue
			}
			target, ok := reg.Resolve(e.Module, c.References)
			if !ok {
				return nil, fmt.Errorf("%s.%s: unknown referenced entity %q", e.Name, p.Key, c.References)
			}
			tpk, err := target.PrimaryKey()
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&fks, "alter table %s add constraint %s foreign key (%s) references %s (%s);\n",
				pq.QuoteIdentifier(e.Table), pq.QuoteIdentifier(e.Table+"_"+c.Name+"_fk"),
				quote(c.Name), pq.QuoteIdentifier(target.Table), quote(tpk.Column.Name))
		}

		for _, p := range e.Properties() {
			if p.Relation == nil || p.Relation.JoinTable == nil || p.Owner() != e {
				continue
			}
			jt := p.Relation.JoinTable
			if seenJoin[jt.Name] {
				continue
			}
			seenJoin[jt.Name] = true
			lpk, _ := e.PrimaryKey()
			rpk, err := p.Target().PrimaryKey()
			if err != nil || lpk == nil {
				return nil, fmt.Errorf("%s.%s: join table needs single primary keys", e.Name, p.Key)
			}
			lt, _ := sqlType(lpk.Column.Type)
			rt, _ := sqlType(rpk.Column.Type)
			fmt.Fprintf(&joins, "create table if not exists %s (\n  %s %s not null,\n  %s %s not null,\n  primary key (%s)\n);\n",
				pq.QuoteIdentifier(jt.Name), pq.QuoteIdentifier(jt.Local), lt, pq.QuoteIdentifier(jt.Remote), rt,
				quote(jt.Local, jt.Remote))
			fmt.Fprintf(&fks, "alter table %s add constraint %s foreign key (%s) references %s (%s);\n",
				pq.QuoteIdentifier(jt.Name), pq.QuoteIdentifier(jt.Name+"_"+jt.Local+"_fk"),
				quote(jt.Local), pq.QuoteIdentifier(e.Table), quote(lpk.Column.Name))
			fmt.Fprintf(&fks, "alter table %s add constraint %s foreign key (%s) references %s (%s);\n",
				pq.QuoteIdentifier(jt.Name), pq.QuoteIdentifier(jt.Name+"_"+jt.Remote+"_fk"),
				quote(jt.Remote), pq.QuoteIdentifier(p.Target().Table), quote(rpk.Column.Name))
		}
	}

	out := map[string]string{"000_tables": tables.String()}
	if joins.Len() > 0 {
		out["100_join_tables"] = joins.String()
	}
	if fks.Len() > 0 {
		out["200_foreign_keys"] = fks.String()
	}
	return out, nil
}
