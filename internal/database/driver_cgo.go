//go:build cgo

package database

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
)
