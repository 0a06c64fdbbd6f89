// Package all wires every built-in storage backend into the storage factory.
//
// Importing it for side effects makes the following kinds available to
// storage.New and storage.EnsureTables:
//
//   - "postgres" (csvsplit/internal/storage/postgres)
//   - "mssql"    (csvsplit/internal/storage/mssql)
//   - "mysql"    (csvsplit/internal/storage/mysql)
//   - "sqlite"   (csvsplit/internal/storage/sqlite)
//
// A binary that needs only a subset can import the backend packages directly.
package all

import (
	_ "csvsplit/internal/storage/mssql"
	_ "csvsplit/internal/storage/mysql"
	_ "csvsplit/internal/storage/postgres"
	_ "csvsplit/internal/storage/sqlite"
)
