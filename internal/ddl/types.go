package ddl

// ColumnDef describes a single column of a table definition.
//
// Fields:
//   - Name: column name, unquoted; quoting happens at render time
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g., "schema.table"); each
// segment is quoted separately by the dialect.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect captures what differs between backends when rendering DDL.
type Dialect struct {
	// Name appears in error messages.
	Name string

	// Quote quotes one identifier segment. Nil emits identifiers verbatim.
	Quote func(ident string) string

	// IfNotExists renders CREATE TABLE IF NOT EXISTS.
	IfNotExists bool

	// Guard, when set, wraps the finished statement, for backends without
	// IF NOT EXISTS support.
	Guard func(quotedFQN, stmt string) string

	// MapType maps a field class (e.g., "int", "date") to a column type.
	MapType func(class string) string
}

// Generic renders identifiers as-is and plain CREATE TABLE statements.
var Generic = Dialect{Name: "ddl"}
