// Package migrations embeds the goose SQL migration files applied by postgres.Migrate.
package migrations

import "embed"

// FS holds the embedded goose migration files.
//
//go:embed *.sql
var FS embed.FS
