// internal/ddl/create.go

// Package ddl defines a small, backend-agnostic model for SQL DDL and renders
// CREATE TABLE statements from it. Backends describe their quoting, type
// mapping and existence guard through a Dialect.
package ddl

import (
	"fmt"
	"strings"

	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
)

// BuildCreateTableSQL renders a CREATE TABLE statement from t in dialect d.
//
// Rules:
//
//   - t.FQN must be non-empty; each dotted segment is quoted with d.Quote.
//
//   - Each column must have a non-empty Name and SQLType.
//
//   - A column is rendered as:
//
//     <Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
//     where NOT NULL is added when Nullable == false.
//
//   - Columns with PrimaryKey == true are collected into a trailing
//     PRIMARY KEY (<col1>, <col2>, ...) clause.
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	name := d.Name
	if name == "" {
		name = "ddl"
	}
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", errors.Newf("%s: table FQN must not be empty", name)
	}
	if len(t.Columns) == 0 {
		return "", errors.Newf("%s: at least one column is required", name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		col := strings.TrimSpace(c.Name)
		if col == "" {
			return "", errors.Newf("%s: column with empty name in table %s", name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", errors.Newf("%s: column %s missing SQLType", name, col)
		}

		var sb strings.Builder
		sb.WriteString(d.quote(col))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.quote(col))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	create := "CREATE TABLE "
	if d.IfNotExists {
		create += "IF NOT EXISTS "
	}
	qfqn := d.QuoteFQN(fqn)
	stmt := fmt.Sprintf("%s%s (\n  %s\n);", create, qfqn, strings.Join(cols, ",\n  "))
	if d.Guard != nil {
		stmt = d.Guard(qfqn, stmt)
	}
	return stmt, nil
}

// QuoteFQN quotes each non-empty dotted segment of fqn.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, d.quote(p))
		}
	}
	return strings.Join(out, ".")
}

func (d Dialect) quote(id string) string {
	if d.Quote == nil {
		return id
	}
	return d.Quote(id)
}

// FromSchema derives a table definition from a record descriptor. Columns,
// when given, rename the fields by position and must match the arity. All
// columns are nullable; field classes are mapped with d.MapType.
func FromSchema(d Dialect, table string, desc *schema.Descriptor, columns []string) (TableDef, error) {
	if len(columns) > 0 && len(columns) != desc.Arity() {
		return TableDef{}, &errors.ArityMismatchError{What: "columns of table " + table, Want: desc.Arity(), Got: len(columns)}
	}
	td := TableDef{FQN: table, Columns: make([]ColumnDef, desc.Arity())}
	for i := range td.Columns {
		name := desc.FieldName(i)
		if len(columns) > 0 {
			name = columns[i]
		}
		typ := "TEXT"
		if d.MapType != nil {
			typ = d.MapType(desc.ClassAt(i))
		}
		td.Columns[i] = ColumnDef{Name: name, SQLType: typ, Nullable: true}
	}
	return td, nil
}
