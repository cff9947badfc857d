//go:build cgo_sqlite

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName selects the CGO SQLite driver, built with
// -tags cgo_sqlite for deployments that prefer the C library's
// performance over a pure-Go toolchain.
const driverName = "sqlite3"
