package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"shwanortho/clinic-sync-bridge/config"
	h "shwanortho/clinic-sync-bridge/http"
	"shwanortho/clinic-sync-bridge/job"
	"shwanortho/clinic-sync-bridge/kafka"
	"shwanortho/clinic-sync-bridge/log"
	"shwanortho/clinic-sync-bridge/prometheus"
	syncpkg "shwanortho/clinic-sync-bridge/sync"
	"shwanortho/clinic-sync-bridge/sync/applier"
	"shwanortho/clinic-sync-bridge/sync/data"
	"shwanortho/clinic-sync-bridge/sync/poller"
	"shwanortho/clinic-sync-bridge/sync/processor"
	"shwanortho/clinic-sync-bridge/sync/state"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	cfg, err := config.NewConfig()
	if err != nil {
		log.Logger.Fatalf("unable to create configuration: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	dbs, dbClose := data.NewDBs(cfg)
	defer dbClose()

	repo := syncpkg.NewRepository(dbs.Source, cfg)

	var exitCode int
	switch {
	case cfg.RunCleanup:
		exitCode = job.RunCleanup(repo, cfg)
	default:
		runMainApp(ctx, dbs, repo, cfg)
	}

	if exitCode > 0 {
		dbClose() // we call this manually because os.Exit() does not respect defer
		os.Exit(exitCode)
	}
}

func runMainApp(ctx context.Context, dbs data.DBs, repo syncpkg.Repository, cfg *config.Config) {
	store, err := state.NewStore(cfg.CheckpointPath, cfg.GetHealthyWindow())
	if err != nil {
		log.Logger.Fatalf("unable to load the sync checkpoint: %s", err)
	}

	registry := applier.DefaultRegistry()
	mirrorApplier := applier.NewApplier(dbs.Mirror, config.Postgres, registry)
	sourceApplier := applier.NewApplier(dbs.Source, cfg.SourceDBDriver, registry)

	var pub kafka.Publisher
	if cfg.EventPublishingEnabled() {
		pub = kafka.NewPublisher(cfg.KafkaHost, cfg.KafkaEventTopic, kafka.NewSaramaConfig(cfg.TLSEnable, cfg.TLSSkipVerifyPeer))
		defer pub.Close()
	}

	proc := processor.New(repo, mirrorApplier, pub)
	go proc.Run(ctx, cfg.GetDrainIntervalDuration())

	p := poller.New(dbs.Mirror, sourceApplier, store, registry, cfg.GetPollIntervalDuration())
	p.Start(ctx)
	defer p.Stop()

	go prometheus.ObserveQueueSize(repo, ctx)
	go prometheus.ObserveTotalSize(repo, ctx)
	go prometheus.ObserveReverseSyncLag(store, ctx)

	h.StartServer(ctx, cfg, h.Deps{
		SourceApplier: sourceApplier,
		Drainer:       proc,
		Notifier:      proc,
		StateStore:    store,
		SourceDB:      dbs.Source,
		MirrorDB:      dbs.Mirror,
	})
}
