// Package migrations embeds SQL migration files into the binary.
//
// Device nodes and client monitors share one schema: devices use the
// device_settings table, monitors use the history tables.
package migrations

import (
	"embed"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
