package migrations

import "embed"

// FS contains embedded SQLite migrations for camp planner storage.
//
//go:embed *.sql
var FS embed.FS
