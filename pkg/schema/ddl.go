package schema

import (
	"strings"

	"github.com/iota-uz/projtrack/pkg/store"
)

func columnType(d store.Dialect, k Kind) string {
	if d == store.Postgres {
		switch k {
		case Integer:
			return "BIGINT"
		case Real:
			return "DOUBLE PRECISION"
		case Bool:
			return "BOOLEAN"
		case JSON:
			return "JSONB"
		default:
			return "TEXT"
		}
	}
	switch k {
	case Integer, Bool:
		return "INTEGER"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

func identityDef(d store.Dialect) string {
	if d == store.Postgres {
		return "id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

func columnDef(d store.Dialect, c Column) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteByte(' ')
	b.WriteString(columnType(d, c.Kind))
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.References != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(d.Quote(c.References))
		b.WriteString("(id)")
		if c.OnDelete != "" {
			b.WriteString(" ON DELETE ")
			b.WriteString(c.OnDelete)
		}
	}
	return b.String()
}

// CreateTableSQL renders an idempotent CREATE TABLE for the dialect.
func CreateTableSQL(d store.Dialect, t Table) string {
	defs := make([]string, 0, len(t.Columns)+1)
	defs = append(defs, identityDef(d))
	for _, c := range t.Columns {
		defs = append(defs, columnDef(d, c))
	}
	return "CREATE TABLE IF NOT EXISTS " + d.Quote(t.Name) + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

func AddColumnSQL(d store.Dialect, table string, c Column) string {
	return "ALTER TABLE " + d.Quote(table) + " ADD COLUMN " + columnDef(d, c)
}

func CreateIndexSQL(d store.Dialect, table string, idx Index) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = d.Quote(c)
	}
	kw := "CREATE INDEX"
	if idx.Unique {
		kw = "CREATE UNIQUE INDEX"
	}
	return kw + " IF NOT EXISTS " + d.Quote(idx.Name) + " ON " + d.Quote(table) + " (" + strings.Join(cols, ", ") + ")"
}
