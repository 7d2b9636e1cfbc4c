package migrations

import "embed"

// FS contains embedded SQLite migrations for interview storage.
//
//go:embed *.sql
var FS embed.FS
