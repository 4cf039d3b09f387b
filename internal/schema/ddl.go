package schema

import (
	"fmt"
	"strings"
)

// CreateTableSQL returns idempotent DDL for the table and, when it has a
// business key, a unique index over it.
func (t *Table) CreateTableSQL() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.SQLName)
	b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s", c.Name, c.Type)
		if c.Required {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	b.WriteString("\tinserted_at TIMESTAMPTZ NOT NULL DEFAULT now()\n)")

	stmts := []string{b.String()}

	if len(t.BusinessKey) > 0 {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s_business_key ON %s (%s)",
			t.SQLName, t.SQLName, strings.Join(t.columnNames(t.BusinessKey), ", "),
		))
	}
	if t.DateKey != "" {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)",
			t.SQLName, t.ColumnName(t.DateKey), t.SQLName, t.ColumnName(t.DateKey),
		))
	}
	return stmts
}

// InsertSQL returns a multi-row INSERT for n rows covering every column in
// registry order. Conflicting rows are skipped.
func (t *Table) InsertSQL(n int) string {
	names := t.columnNames(t.Keys())

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.SQLName, strings.Join(names, ", "))

	width := len(names)
	for row := 0; row < n; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i := 0; i < width; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", row*width+i+1)
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String()
}

// ExistingKeysSQL selects the business key columns of rows whose delivery
// date is in the array bound to $1.
func (t *Table) ExistingKeysSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		strings.Join(t.columnNames(t.BusinessKey), ", "),
		t.SQLName,
		t.ColumnName(t.DateKey),
	)
}

// ExistingDatesSQL selects the distinct delivery dates present among the
// array bound to $1.
func (t *Table) ExistingDatesSQL() string {
	col := t.ColumnName(t.DateKey)
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s = ANY($1)", col, t.SQLName, col)
}

func (t *Table) columnNames(keys []string) []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = t.ColumnName(k)
	}
	return names
}
