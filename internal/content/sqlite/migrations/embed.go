package migrations

import "embed"

// FS contains embedded SQLite migrations for the reference content store.
//
//go:embed *.sql
var FS embed.FS
