package data

import (
	"database/sql"
	"embed"

	"shwanortho/clinic-sync-bridge/config"
	"shwanortho/clinic-sync-bridge/log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/johejo/golang-migrate-extra/source/iofs"
)

const (
	migrationsTable = "clinic_sync_schema_migrations"
)

var (
	//go:embed migrations/source/sqlserver/*.sql
	sourceSqlServerFiles embed.FS
	//go:embed migrations/source/postgres/*.sql
	sourcePostgresFiles embed.FS
	//go:embed migrations/mirror/*.sql
	mirrorFiles embed.FS
)

// MigrateSourceDatabase installs the outbox table in the practice management
// database.
func MigrateSourceDatabase(db *sql.DB, cfg *config.Config) {
	log.Logger.Info("checking source database migrations")

	if cfg.SkipMigrations {
		log.Logger.Info("skipping source database migrations because they are disabled")
		return
	}

	var err error
	var driver database.Driver
	if cfg.SourceDBDriver.SqlServer() {
		driver, err = sqlserver.WithInstance(db, &sqlserver.Config{MigrationsTable: migrationsTable})
	} else {
		driver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	}

	if err != nil {
		log.Logger.Fatalf("unable to create migration instance from source database: %s", err)
	}

	var src embed.FS
	var dir string
	if cfg.SourceDBDriver.SqlServer() {
		src, dir = sourceSqlServerFiles, "migrations/source/sqlserver"
	} else {
		src, dir = sourcePostgresFiles, "migrations/source/postgres"
	}

	runMigrations(src, dir, cfg.SourceDBName, driver)

	log.Logger.Info("source database is up-to-date, all migrations applied")
}

// MigrateMirrorDatabase installs the replicated clinic tables in the mirror.
func MigrateMirrorDatabase(db *sql.DB, cfg *config.Config) {
	log.Logger.Info("checking mirror database migrations")

	if cfg.SkipMigrations {
		log.Logger.Info("skipping mirror database migrations because they are disabled")
		return
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		log.Logger.Fatalf("unable to create migration instance from mirror database: %s", err)
	}

	runMigrations(mirrorFiles, "migrations/mirror", cfg.MirrorDBName, driver)

	log.Logger.Info("mirror database is up-to-date, all migrations applied")
}

func runMigrations(files embed.FS, dir, dbName string, driver database.Driver) {
	d, err := iofs.New(files, dir)
	if err != nil {
		log.Logger.Fatalf("unable to load migration files from embedded filesystem: %s", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, dbName, driver)
	if err != nil {
		log.Logger.Fatalf("failed to load migration files from source driver: %s", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Logger.Fatalf("failed to migrate database: %s", err)
	}
}
