// Package migrations embeds the goose schema migrations for each supported
// database. Directories are named after the dbx database types.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS

//go:embed sqlite/*.sql
var SQLite embed.FS
