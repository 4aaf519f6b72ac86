package prometheus

import (
	"context"
	"time"

	"shwanortho/clinic-sync-bridge/log"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outboxTotalSize prom.Gauge

type totalSizer interface {
	GetTotalSize() (uint, error)
}

func init() {
	outboxTotalSize = promauto.NewGauge(prom.GaugeOpts{
		Name: "clinic_sync_outbox_total_size",
		Help: "The total size of the sync outbox (all changes, including processed ones awaiting cleanup)",
	})
}

func ObserveTotalSize(sizer totalSizer, ctx context.Context) {
	for {
		size, err := sizer.GetTotalSize()
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the total size of the outbox")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			outboxTotalSize.Set(float64(size))

			time.Sleep(time.Second * 1)
		}
	}
}
