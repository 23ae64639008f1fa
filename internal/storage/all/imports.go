// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each backend, which register their
// factories with the storage package. It makes these kinds available:
//
//   - "postgres"  (flowbridge/internal/storage/postgres)
//   - "sqlserver" (flowbridge/internal/storage/mssql)
//   - "mysql"     (flowbridge/internal/storage/mysql)
//   - "sqlite"    (flowbridge/internal/storage/sqlite)
//
// A binary that supports only a subset of backends can import the backend
// packages it needs instead.
package all

import (
	_ "flowbridge/internal/storage/mssql"
	_ "flowbridge/internal/storage/mysql"
	_ "flowbridge/internal/storage/postgres"
	_ "flowbridge/internal/storage/sqlite"
)
