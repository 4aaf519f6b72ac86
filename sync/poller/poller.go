package poller

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"shwanortho/clinic-sync-bridge/log"
	syncpkg "shwanortho/clinic-sync-bridge/sync"
	"shwanortho/clinic-sync-bridge/sync/applier"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type sourceApplier interface {
	Apply(ctx context.Context, c applier.Change) error
}

type checkpointStore interface {
	LastSync() *time.Time
	Advance(t time.Time) error
}

// Poller is the reverse-sync fallback: on a timer it re-scans the mirror for
// rows changed since the last checkpoint and replays them into the source,
// covering webhook deliveries that never arrived. Webhooks remain the low
// latency path; this loop is the safety net.
type Poller struct {
	mirror   *sql.DB
	ap       sourceApplier
	store    checkpointStore
	registry *applier.Registry
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc

	now func() time.Time
}

func New(mirror *sql.DB, ap sourceApplier, store checkpointStore, registry *applier.Registry, interval time.Duration) *Poller {
	return &Poller{
		mirror:   mirror,
		ap:       ap,
		store:    store,
		registry: registry,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the polling loop with an immediate catch-up run. Calling it
// while the loop is already running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	log.Logger.WithFields(logrus.Fields{"interval": p.interval.String()}).Info("started reverse-sync polling")
}

// Stop cancels the polling loop. Safe to call when not running, and safe to
// call twice.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}

	p.cancel()
	p.cancel = nil

	log.Logger.Info("stopped reverse-sync polling")
}

func (p *Poller) loop(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil {
		log.Logger.WithError(err).Error("reverse-sync catch-up run failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				log.Logger.WithError(err).Error("reverse-sync run failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce scans every mapped mirror table for rows changed since the
// checkpoint and replays them into the source. The checkpoint only advances
// after a fully clean run, and it advances to the time the run started, so
// rows updated while the scan was in flight fall into the next window.
// Duplicate re-application across overlapping windows is harmless because the
// applier's writes are idempotent.
func (p *Poller) RunOnce(ctx context.Context) error {
	start := p.now().In(time.UTC)
	since := p.store.LastSync()

	var replayed, failed int
	for _, m := range p.registry.Mappings() {
		// tables without a change timestamp cannot be scanned incrementally
		if m.UpdatedAt == "" {
			continue
		}

		n, f, err := p.replayTable(ctx, m, since)
		if err != nil {
			return err
		}
		replayed += n
		failed += f
	}

	if failed > 0 {
		return errors.Errorf("poller: %d row(s) failed to apply, checkpoint not advanced", failed)
	}

	if err := p.store.Advance(start); err != nil {
		return err
	}

	log.Logger.WithFields(logrus.Fields{"rows": replayed, "checkpoint": start}).Debug("reverse-sync run complete")

	return nil
}

func (p *Poller) replayTable(ctx context.Context, m applier.Mapping, since *time.Time) (int, int, error) {
	q, args := scanSql(m, since)

	rows, err := p.mirror.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, 0, errors.Errorf("poller: error scanning mirror table %s: %s", m.Table, err)
	}
	defer rows.Close()

	var replayed, failed int
	for rows.Next() {
		record, err := scanRecord(rows, m.Columns)
		if err != nil {
			return replayed, failed, errors.Errorf("poller: error reading mirror row from %s: %s", m.Table, err)
		}

		c := applier.Change{
			Table:     m.Table,
			Operation: syncpkg.OpUpdate,
			Record:    record,
		}

		if err := p.ap.Apply(ctx, c); err != nil {
			log.Logger.WithError(err).WithFields(logrus.Fields{"table": m.Table, "key": record[m.Key]}).Error("error replaying mirror row into the source")
			failed++
			continue
		}

		replayed++
	}

	return replayed, failed, rows.Err()
}

func scanSql(m applier.Mapping, since *time.Time) (string, []interface{}) {
	var quoted []string
	for _, col := range m.Columns {
		quoted = append(quoted, `"`+col+`"`)
	}

	q := fmt.Sprintf(`SELECT %s FROM "%s"`, strings.Join(quoted, ", "), m.Table)
	if since == nil {
		return q, nil
	}

	q += fmt.Sprintf(` WHERE "%s" > $1`, m.UpdatedAt)

	return q, []interface{}{*since}
}

func scanRecord(rows *sql.Rows, cols []string) (map[string]interface{}, error) {
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	record := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		record[col] = v
	}

	return record, nil
}
