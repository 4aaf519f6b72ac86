package processor

import (
	"context"
	"encoding/json"
	"time"

	"shwanortho/clinic-sync-bridge/log"
	syncpkg "shwanortho/clinic-sync-bridge/sync"
	"shwanortho/clinic-sync-bridge/sync/applier"

	"github.com/sirupsen/logrus"
)

type repository interface {
	ClaimBatch() (*syncpkg.Batch, error)
	CommitBatch(batch *syncpkg.Batch)
}

type changeApplier interface {
	Apply(ctx context.Context, c applier.Change) error
}

type eventPublisher interface {
	PublishChange(e *syncpkg.Entry) error
}

// Result summarises one drain cycle for the manual trigger endpoint.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Processor drains the source outbox into the mirror. One instance runs per
// outbox table; the conditional claim in the repository is the only guard
// against double-processing, so deployments must not run two of these against
// the same outbox.
type Processor struct {
	repo   repository
	ap     changeApplier
	pub    eventPublisher
	notify chan struct{}
}

func New(repo repository, ap changeApplier, pub eventPublisher) *Processor {
	return &Processor{
		repo:   repo,
		ap:     ap,
		pub:    pub,
		notify: make(chan struct{}, 1),
	}
}

// Notify wakes the drain loop without waiting for the next tick. It never
// blocks; a signal arriving while a drain is already queued is coalesced.
func (p *Processor) Notify() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run drains the outbox on a fixed interval and whenever Notify is called,
// until the context is cancelled. Drain errors are logged and deferred to the
// next wakeup; they never escape the loop.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.notify:
		case <-ctx.Done():
			return
		}

		if _, err := p.DrainOnce(ctx); err != nil {
			log.Logger.WithError(err).Error("an unexpected error occurred draining the outbox")
		}
	}
}

// DrainOnce claims one batch and applies it to the mirror in created_at
// order. A failing entry is recorded on the entry and does not stop the rest
// of the batch; the commit moves it back to pending (or failed once its
// attempts are spent).
func (p *Processor) DrainOnce(ctx context.Context) (Result, error) {
	var res Result

	batch, err := p.repo.ClaimBatch()
	if err == syncpkg.ErrNoEntries {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if batch == nil || len(batch.Entries) == 0 {
		return res, nil
	}

	log.Logger.WithFields(logrus.Fields{
		"batch_id":    batch.Id.String(),
		"num_entries": len(batch.Entries),
	}).Debug("draining claimed batch")

	for _, e := range batch.Entries {
		c, err := entryChange(e)
		if err != nil {
			log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id}).Error("outbox entry cannot be translated")
			e.ErrorReason = err
			res.Failed++
			continue
		}

		if err := p.ap.Apply(ctx, c); err != nil {
			log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id, "table": e.TableName}).Error("error applying outbox entry to the mirror")
			e.ErrorReason = err
			res.Failed++
			continue
		}

		res.Processed++

		if p.pub == nil {
			continue
		}

		// change events are best-effort; a publish failure never fails the
		// entry, the row is already in the mirror
		if err := p.pub.PublishChange(e); err != nil {
			log.Logger.WithError(err).WithFields(logrus.Fields{"entry_id": e.Id}).Warn("error publishing change event")
		}
	}

	p.repo.CommitBatch(batch)

	return res, nil
}

func entryChange(e *syncpkg.Entry) (applier.Change, error) {
	c := applier.Change{
		Table:     e.TableName,
		Operation: e.Operation,
	}

	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &c.Record); err != nil {
			return applier.Change{}, err
		}
	}

	return c, nil
}
