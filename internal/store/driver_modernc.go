//go:build !cgo_sqlite

package store

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go SQLite driver, the default backend:
// no CGO toolchain required, identical schema and semantics.
const driverName = "sqlite"
