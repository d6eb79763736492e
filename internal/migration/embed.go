package migration

import "embed"

const (
	postgresDir = "migrations/postgres"
	sqliteDir   = "migrations/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embeddedMigrations embed.FS
