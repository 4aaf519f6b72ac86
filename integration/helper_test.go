//go:build integration
// +build integration

package integration

import (
	"context"
	"net/http/httptest"
	"os"
	"time"

	"shwanortho/clinic-sync-bridge/config"
	h "shwanortho/clinic-sync-bridge/integration/http"
	syncpkg "shwanortho/clinic-sync-bridge/sync"
	"shwanortho/clinic-sync-bridge/sync/applier"
	"shwanortho/clinic-sync-bridge/sync/data"
	"shwanortho/clinic-sync-bridge/sync/processor"
)

const (
	testModeDocker = "docker"
)

var (
	cfg           *config.Config
	dbs           data.DBs
	repo          syncpkg.Repository
	registry      *applier.Registry
	mirrorApplier *applier.Applier
	sourceApplier *applier.Applier
	proc          *processor.Processor
	server        *httptest.Server
)

func init() {
	server = httptest.NewServer(h.GetHttpTestHandlerFunc())
	setupConfig()

	dbs, _ = data.NewDBs(cfg)
	ensureSourceClinicTablesExist()
	purgeOutboxTable()
	purgeMirrorTables()
	purgeSourceClinicTables()

	registry = applier.DefaultRegistry()
	repo = syncpkg.NewRepository(dbs.Source, cfg)
	mirrorApplier = applier.NewApplier(dbs.Mirror, config.Postgres, registry)
	sourceApplier = applier.NewApplier(dbs.Source, cfg.SourceDBDriver, registry)
	proc = processor.New(repo, mirrorApplier, nil)

	go proc.Run(context.Background(), cfg.GetDrainIntervalDuration())
}

func setupConfig() *config.Config {
	var runInDocker bool
	if os.Getenv("GO_TEST_MODE") == testModeDocker {
		runInDocker = true
	}

	cfg = &config.Config{
		SourceDBDriver:      config.Postgres,
		SourceDBHost:        "localhost",
		SourceDBPort:        15432,
		SourceDBUser:        "clinic-sync-bridge",
		SourceDBPass:        "clinic-sync-bridge",
		SourceDBName:        "clinic-sync-bridge",
		OutboxTable:         "sync_outbox",
		MirrorDBHost:        "localhost",
		MirrorDBPort:        15433,
		MirrorDBUser:        "clinic-sync-bridge",
		MirrorDBPass:        "clinic-sync-bridge",
		MirrorDBName:        "clinic-sync-bridge",
		MirrorDBSSLMode:     "disable",
		PollIntervalMinutes: 60,
		DrainFrequencyMs:    100,
		BatchSize:           250,
		MaxApplyAttempts:    3,
		SidecarProxyUrl:     server.URL,
	}

	if runInDocker {
		cfg.SourceDBHost = "source-db"
		cfg.SourceDBPort = 5432
		cfg.MirrorDBHost = "mirror-db"
		cfg.MirrorDBPort = 5432
	}

	return cfg
}

func waitForDrain() {
	time.Sleep(time.Millisecond * 500)
}
