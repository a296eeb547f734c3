// Package kitdb holds all the migrations for the kit database
package kitdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the kit database
var Migrations = migrate.NewMigrations()
