// Package migrations embeds the schema files applied by database.Migrate.
package migrations

import "embed"

// FS holds the *.sql migrations.
//
//go:embed *.sql
var FS embed.FS
