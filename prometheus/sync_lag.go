package prometheus

import (
	"context"
	"time"

	"shwanortho/clinic-sync-bridge/sync/state"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reverseSyncLag prom.Gauge

type stateReader interface {
	Snapshot() state.Status
}

func init() {
	reverseSyncLag = promauto.NewGauge(prom.GaugeOpts{
		Name: "clinic_sync_reverse_lag_seconds",
		Help: "Seconds since the last successful reverse-sync poll (-1 when no poll has completed yet)",
	})
}

func ObserveReverseSyncLag(store stateReader, ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			st := store.Snapshot()
			if st.LastSync == nil {
				reverseSyncLag.Set(-1)
			} else {
				reverseSyncLag.Set(time.Since(*st.LastSync).Seconds())
			}

			time.Sleep(time.Second * 1)
		}
	}
}
