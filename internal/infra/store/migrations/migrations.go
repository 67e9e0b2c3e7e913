// Package migrations holds the schema history. Each file registers one
// migration; the file name orders it.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
