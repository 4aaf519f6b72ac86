package data

import (
	"database/sql"
	"time"

	"shwanortho/clinic-sync-bridge/config"
	"shwanortho/clinic-sync-bridge/log"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	connectionAttempts    = 30
	maxOpenConnections    = 10
	maxIdleConnections    = 5
	maxConnectionLifetime = time.Minute * 1
)

// DBs holds the two ends of the bridge: the practice management database the
// outbox lives in, and the Postgres mirror the queue drains into.
type DBs struct {
	Source *sql.DB
	Mirror *sql.DB
}

// NewDBs connects to the source and mirror databases, waiting for each to
// become available. It also applies migrations on both, unless migrations are
// disabled in config.
func NewDBs(cfg *config.Config) (DBs, func()) {
	log.Logger.Debug("connecting to the source database")
	source := openDatabase(cfg.SourceDBDriver.DriverName(), cfg.GetSourceDSN())
	MigrateSourceDatabase(source, cfg)

	log.Logger.Debug("connecting to the mirror database")
	mirror := openDatabase("pgx", cfg.GetMirrorDSN())
	MigrateMirrorDatabase(mirror, cfg)

	dbs := DBs{
		Source: source,
		Mirror: mirror,
	}

	cleanup := func() {
		for _, db := range []*sql.DB{source, mirror} {
			if err := db.Close(); err != nil {
				log.Logger.WithError(err).Error("error closing database during shutdown process")
			}
		}
	}

	return dbs, cleanup
}

func openDatabase(driverName, dsn string) *sql.DB {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		log.Logger.Fatalf("unable to connect to the database: %s", err)
	}

	db.SetMaxOpenConns(maxOpenConnections)
	db.SetMaxIdleConns(maxIdleConnections)
	db.SetConnMaxLifetime(maxConnectionLifetime)

	waitForDatabase(db)

	return db
}

func waitForDatabase(db *sql.DB) {
	tries := connectionAttempts
	for {
		err := db.Ping()
		if err == nil {
			break
		}

		time.Sleep(time.Second * 1)
		tries--
		log.Logger.Infof("database is not available (err: %s), retrying %d more time(s)", err, tries)

		if tries == 0 {
			log.Logger.Fatalf("database did not become available within %d connection attempts", connectionAttempts)
		}
	}
}
