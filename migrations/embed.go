package migrations

import "embed"

// Files exposes embedded SQL migrations, one directory per driver, ordered lexicographically.
//
//go:embed sqlite/*.sql postgres/*.sql
var Files embed.FS
