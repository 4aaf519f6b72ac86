package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shwanortho/clinic-sync-bridge/config"
	"shwanortho/clinic-sync-bridge/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries everything the HTTP surface needs. The webhook applier writes
// to the source database, the pingers cover both ends of the bridge.
type Deps struct {
	SourceApplier changeApplier
	Drainer       drainer
	Notifier      notifier
	StateStore    stateReader
	SourceDB      Pinger
	MirrorDB      Pinger
}

func StartServer(ctx context.Context, cfg *config.Config, deps Deps) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", NewHealthzHandler(cfg.GetDependencySystemAddresses(), deps.SourceDB, deps.MirrorDB))
	mux.Handle("/api/sync/webhook", NewWebhookHandler(deps.SourceApplier, cfg.WebhookSecret))
	mux.Handle("/api/sync/trigger", NewTriggerHandler(deps.Drainer))
	mux.Handle("/api/sync/queue-notify", NewNotifyHandler(deps.Notifier))
	mux.Handle("/api/sync/status", NewStatusHandler(deps.StateStore))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Logger.WithError(err).Error("error shutting down the HTTP server")
		}
	}()

	log.Logger.Infof("starting HTTP server on port %d", cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Logger.Fatalf("failed to start HTTP server: %s", err)
	}
}
