// Package queries embeds the SQL catalog files consumed by internal/querycat.Load.
package queries

import "embed"

// FS holds the embedded catalog SQL files: wiki.sql, permissions.sql, watch.sql, binding.sql, guild.sql.
//
//go:embed *.sql
var FS embed.FS
