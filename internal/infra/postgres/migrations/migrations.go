package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema migration; each file registers one step in init.
var Migrations = migrate.NewMigrations()
