package sync

import (
	"database/sql"
	"time"

	"shwanortho/clinic-sync-bridge/config"
	"shwanortho/clinic-sync-bridge/log"
	s "shwanortho/clinic-sync-bridge/sync/data/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// staleClaimAge is how long an entry may sit in processing before it is
// considered abandoned and becomes claimable again.
const staleClaimAge = 10 * time.Minute

var (
	ErrNoEntries = errors.New("no claimable entries in the outbox")

	columns = []string{"id", "batch_id", "table_name", "row_id", "operation", "payload", "status", "attempts", "created_at", "claimed_at", "processed_at"}
)

type queryProvider interface {
	BatchClaimSql(batchSize int) string
	BatchFetchSql() string
	EntryErroredUpdateSql(maxAttempts int) string
	EntriesSuccessUpdateSql(idCount int) string
	DeleteProcessedEntriesSql() string
	GetQueueSizeSql() string
	GetTotalSizeSql() string
}

type Repository struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider queryProvider
}

func NewRepository(db *sql.DB, cfg *config.Config) Repository {
	return NewRepositoryWithQueryProvider(db, cfg, newQueryProvider(cfg.SourceDBDriver, cfg.OutboxTable, columns))
}

func NewRepositoryWithQueryProvider(db *sql.DB, cfg *config.Config, qp queryProvider) Repository {
	return Repository{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
	}
}

// ClaimBatch atomically moves the oldest claimable entries into processing
// under a fresh batch ID and returns them in created_at order. The conditional
// update is the only concurrency control over the outbox, so a second drain
// cycle arriving concurrently claims a disjoint set of entries. Entries left
// in processing longer than staleClaimAge are reclaimed, covering crashes
// mid-batch.
// If no entries were claimed the special ErrNoEntries value is returned as the
// error.
func (r Repository) ClaimBatch() (*Batch, error) {
	batchId := uuid.New()
	stale := time.Now().In(time.UTC).Add(-staleClaimAge)

	claimSql := r.queryProvider.BatchClaimSql(r.cfg.BatchSize)

	res, err := r.db.Exec(claimSql, batchId, stale)
	if err != nil {
		return nil, errors.Errorf("sync: error claiming a batch of outbox entries in repository: %s", err)
	}

	// if there is an error determining the affected rows, we treat it as a failed query
	// as the drivers we use never return an error value here
	count, _ := res.RowsAffected()
	if count < 1 {
		return nil, ErrNoEntries
	}

	rows, err := r.db.Query(r.queryProvider.BatchFetchSql(), batchId)
	if err != nil {
		return nil, errors.Errorf("sync: error fetching claimed batch in repository: %s", err)
	}

	batch := &Batch{
		Id:      batchId,
		Entries: []*Entry{},
	}

	for rows.Next() {
		e := &Entry{}
		var op, status string
		err := rows.Scan(&e.Id, &e.BatchId, &e.TableName, &e.RowID, &op, &e.Payload, &status, &e.Attempts, &e.CreatedAt, &e.ClaimedAt, &e.ProcessedAt)
		if err != nil {
			return nil, errors.Errorf("sync: error scanning outbox entry into memory in repository: %s", err)
		}
		e.Operation = Operation(op)
		e.Status = Status(status)
		batch.Entries = append(batch.Entries, e)
	}

	return batch, nil
}

// CommitBatch writes back the outcome of a drained batch in one transaction.
// Entries with an ErrorReason go back to pending (or failed once attempts
// reach the configured maximum); the rest are marked done.
func (r Repository) CommitBatch(batch *Batch) {
	log.Logger.WithFields(logrus.Fields{
		"batch_id":    batch.Id.String(),
		"num_entries": len(batch.Entries),
	}).Debug("starting batch commit")

	tx, err := r.db.Begin()
	if err != nil {
		log.Logger.Errorf("error occurred starting a DB transaction to commit the batch: %s", err)
		return
	}

	var successIds []interface{}
	for _, e := range batch.Entries {
		if e.ErrorReason != nil {
			r.updateErroredEntry(tx, e)
		} else {
			successIds = append(successIds, e.Id)
		}
	}

	if len(successIds) > 0 {
		err = r.updateSuccessfulEntries(tx, successIds)
		if err != nil {
			log.Logger.Errorf("error occurred updating successful outbox entries for batch ID %s: %s", batch.Id, err)
			err = tx.Rollback()
			if err != nil {
				log.Logger.Errorf("error rolling back the DB transaction: %s", err)
			}
			return
		}
	}

	err = tx.Commit()
	if err != nil {
		log.Logger.Errorf("error occurred committing transaction for batch: %s", err)
	}
}

func (r Repository) DeleteProcessed(olderThan time.Time) (int64, error) {
	q := r.queryProvider.DeleteProcessedEntriesSql()
	res, err := r.db.Exec(q, olderThan)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r Repository) GetQueueSize() (uint, error) {
	q := r.queryProvider.GetQueueSizeSql()
	res := r.db.QueryRow(q)

	var count uint
	err := res.Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r Repository) GetTotalSize() (uint, error) {
	q := r.queryProvider.GetTotalSizeSql()
	res := r.db.QueryRow(q)

	var count uint
	err := res.Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r Repository) Ping() error {
	return r.db.Ping()
}

func (r Repository) updateErroredEntry(tx *sql.Tx, e *Entry) {
	q := r.queryProvider.EntryErroredUpdateSql(r.cfg.MaxApplyAttempts)
	_, err := tx.Exec(q, e.ErrorReason.Error(), e.Id)

	log.Logger.WithFields(logrus.Fields{"query": q, "error_reason": e.ErrorReason, "id": e.Id}).Debug("updating errored entry")

	if err != nil {
		log.Logger.Errorf("error occurred updating the outbox entry with ID %d: %s", e.Id, err)
	}
}

func (r Repository) updateSuccessfulEntries(tx *sql.Tx, ids []interface{}) error {
	q := r.queryProvider.EntriesSuccessUpdateSql(len(ids))

	log.Logger.WithFields(logrus.Fields{"query": q, "ids": ids}).Debug("updating successful entries")

	_, err := tx.Exec(q, ids...)

	return err
}

func newQueryProvider(d config.DbDriver, table string, columns []string) queryProvider {
	switch true {
	case d.SqlServer():
		return &s.SqlServerQueryProvider{
			Table:   table,
			Columns: columns,
		}
	case d.Postgres():
		return &s.PostgresQueryProvider{
			Table:   table,
			Columns: columns,
		}
	}

	return nil
}
