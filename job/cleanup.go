package job

import (
	"net/http"
	"time"

	"shwanortho/clinic-sync-bridge/config"
	"shwanortho/clinic-sync-bridge/log"
)

const processedRetention = time.Hour

type ProcessedDeleter interface {
	DeleteProcessed(olderThan time.Time) (int64, error)
}

type cleanup struct {
	pd ProcessedDeleter
	SidecarQuitter
}

func RunCleanup(repo ProcessedDeleter, cfg *config.Config) int {
	j := newCleanupWithDefaultClient(repo)
	if cfg.SidecarProxyUrl != "" {
		j.EnableSideCarProxyQuit(cfg.SidecarProxyUrl)
	}

	_, err := j.Execute()
	if err != nil {
		return 1
	}

	return 0
}

func newCleanupWithDefaultClient(pd ProcessedDeleter) *cleanup {
	return &cleanup{
		pd: pd,
		SidecarQuitter: SidecarQuitter{
			Client: http.DefaultClient,
		},
	}
}

func newCleanup(pd ProcessedDeleter, cl httpPoster) *cleanup {
	return &cleanup{
		pd: pd,
		SidecarQuitter: SidecarQuitter{
			Client: cl,
		},
	}
}

func (c *cleanup) Execute() (int64, error) {
	rows, err := c.pd.DeleteProcessed(time.Now().Add(-1 * processedRetention))
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst deleting processed outbox records")
		return 0, err
	}

	log.Logger.Infof("deleted %d processed outbox records", rows)

	if c.QuitSidecar {
		err = c.Quit()
		if err != nil {
			return 0, err
		}
	}

	return rows, nil
}
