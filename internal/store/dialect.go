package store

import (
	"strconv"
	"strings"
)

// dialect captures the few places where SQLite and PostgreSQL disagree.
// Queries are written with ? placeholders and rebound per dialect.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Placeholders inside
// quoted literals are left alone.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// primaryKey is the column definition of an auto-assigned integer id.
func (d dialect) primaryKey() string {
	if d == dialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// ddl expands the {{pk}} marker in a schema statement.
func (d dialect) ddl(stmt string) string {
	return strings.ReplaceAll(stmt, "{{pk}}", d.primaryKey())
}

// tableExistsQuery returns a query taking one table name argument and
// yielding a single count.
func (d dialect) tableExistsQuery() string {
	if d == dialectPostgres {
		return `SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name = $1`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}
