package migrations

import "embed"

// FS embeds the central database's golang-migrate source files.
//
//go:embed *.sql
var FS embed.FS
