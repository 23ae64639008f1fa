package mssql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbridge/internal/ddl"
	"flowbridge/internal/storage"
)

// TestMsIdent verifies that msIdent brackets identifiers and escapes
// closing brackets.
func TestMsIdent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"simple", "[simple]"},
		{"brack]et", "[brack]]et]"},
		{`weird]]name`, `[weird]]]]name]`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, msIdent(tc.in))
	}
	assert.Equal(t, "[sales].[q4].[table]", Dialect.QuoteFQN("sales.q4.table"))
}

/*
TestCreateTableSQL verifies the IF OBJECT_ID guard around CREATE TABLE,
which T-SQL needs in place of IF NOT EXISTS.
*/
func TestCreateTableSQL(t *testing.T) {
	got, err := ddl.BuildCreateTableSQL(Dialect, ddl.TableDef{FQN: "dbo.o'brien", Columns: []ddl.ColumnDef{
		{Name: "id", SQLType: MapType("int"), PrimaryKey: true},
		{Name: "name", SQLType: MapType("string"), Nullable: true},
	}})
	require.NoError(t, err)
	want := "IF OBJECT_ID(N'[dbo].[o''brien]', N'U') IS NULL\nBEGIN\n" +
		"CREATE TABLE [dbo].[o'brien] (\n  [id] INT NOT NULL,\n  [name] NVARCHAR(MAX),\n  PRIMARY KEY ([id])\n);\nEND"
	assert.Equal(t, want, got)
}

func TestMapType(t *testing.T) {
	tests := map[string]string{
		"int": "INT", "long": "BIGINT", "bool": "BIT", "double": "FLOAT",
		"date": "DATE", "timestamp": "DATETIME2", "uuid": "UNIQUEIDENTIFIER",
		"decimal": "DECIMAL(38, 10)", "char": "NCHAR(1)", "": "NVARCHAR(MAX)",
	}
	for class, want := range tests {
		assert.Equal(t, want, MapType(class), class)
	}
}

// TestCopyFromEmptyRows verifies that CopyFrom short-circuits without a
// database connection.
func TestCopyFromEmptyRows(t *testing.T) {
	got, err := New(nil, "dbo.t").CopyFrom(context.Background(), []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestExec(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, New(db, "t").Exec(context.Background(), "SELECT 1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := Open(context.Background(), storage.Config{DSN: "sqlserver://%zz", Table: "t"})
	assert.ErrorContains(t, err, "mssql dsn")
}
