// Package all enables every built-in storage backend. Import it for side
// effects from the wiring layer:
//
//	import _ "csvimport/internal/storage/all"
//
// Binaries that need only a subset can import individual backend packages
// instead.
package all

import (
	_ "csvimport/internal/storage/mssql"
	_ "csvimport/internal/storage/mysql"
	_ "csvimport/internal/storage/postgres"
	_ "csvimport/internal/storage/sqlite"
)
