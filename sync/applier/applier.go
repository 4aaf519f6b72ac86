package applier

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"shwanortho/clinic-sync-bridge/config"
	"shwanortho/clinic-sync-bridge/log"
	syncpkg "shwanortho/clinic-sync-bridge/sync"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnmappedTable = errors.New("applier: table is not mapped for syncing")
	ErrMissingKey    = errors.New("applier: change does not contain the table key column")
)

// Change is a single row mutation to replay against a target database. The
// Record carries a partial or full column snapshot keyed by source column
// names; OldRecord is only consulted for deletes whose Record lacks the key.
type Change struct {
	Table     string
	Operation syncpkg.Operation
	Record    map[string]interface{}
	OldRecord map[string]interface{}
}

// Applier replays changes against one target database. The processor holds an
// instance pointed at the Postgres mirror; the webhook receiver and the
// reverse-sync poller share an instance pointed at the SQL Server source, so
// the translation logic exists exactly once.
type Applier struct {
	db       *sql.DB
	driver   config.DbDriver
	registry *Registry
}

func NewApplier(db *sql.DB, driver config.DbDriver, registry *Registry) *Applier {
	return &Applier{
		db:       db,
		driver:   driver,
		registry: registry,
	}
}

func (a *Applier) Registry() *Registry {
	return a.registry
}

func (a *Applier) Ping() error {
	return a.db.Ping()
}

// Apply executes one idempotent write for the change: a keyed upsert for
// inserts and updates, a keyed delete for deletes. When the incoming record
// carries the mapping's timestamp column, the write is guarded so an older
// snapshot never overwrites a newer row (newest-timestamp-wins).
func (a *Applier) Apply(ctx context.Context, c Change) error {
	m, ok := a.registry.Lookup(c.Table)
	if !ok {
		return errors.Wrapf(ErrUnmappedTable, "table %q", c.Table)
	}

	key, ok := c.keyValue(m)
	if !ok {
		return errors.Wrapf(ErrMissingKey, "table %q, key column %q", c.Table, m.Key)
	}

	if c.Operation == syncpkg.OpDelete {
		return a.applyDelete(ctx, m, key)
	}

	cols, vals := m.filterColumns(c.Record)
	if len(cols) == 0 {
		return errors.Wrapf(ErrMissingKey, "table %q has no mapped columns in change", c.Table)
	}

	if a.driver.Postgres() {
		return a.applyPostgresUpsert(ctx, m, cols, vals)
	}

	return a.applySqlServerUpsert(ctx, m, cols, vals, key)
}

func (a *Applier) applyDelete(ctx context.Context, m Mapping, key interface{}) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", a.ident(m.Table), a.ident(m.Key), a.placeholder(1))

	_, err := a.db.ExecContext(ctx, q, key)
	if err != nil {
		return errors.Errorf("applier: error deleting row from %s: %s", m.Table, err)
	}

	return nil
}

func (a *Applier) applyPostgresUpsert(ctx context.Context, m Mapping, cols []string, vals []interface{}) error {
	var quoted, placeholders, assignments []string
	for i, col := range cols {
		quoted = append(quoted, a.ident(col))
		placeholders = append(placeholders, a.placeholder(i+1))
		if col != m.Key {
			assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", a.ident(col), a.ident(col)))
		}
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		a.ident(m.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		a.ident(m.Key),
		strings.Join(assignments, ", "),
	)

	if m.guardApplies(cols) {
		q += fmt.Sprintf(
			" WHERE %s.%s IS NULL OR EXCLUDED.%s >= %s.%s",
			a.ident(m.Table), a.ident(m.UpdatedAt), a.ident(m.UpdatedAt), a.ident(m.Table), a.ident(m.UpdatedAt),
		)
	}

	// rows with only a key column have nothing to assign on conflict
	if len(assignments) == 0 {
		q = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			a.ident(m.Table),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
			a.ident(m.Key),
		)
	}

	_, err := a.db.ExecContext(ctx, q, vals...)
	if err != nil {
		return errors.Errorf("applier: error upserting row into %s: %s", m.Table, err)
	}

	return nil
}

// applySqlServerUpsert updates the row first and inserts only when no row
// matched. A duplicate key error on the insert means a guarded update skipped
// a stale snapshot, which is a successful no-op.
func (a *Applier) applySqlServerUpsert(ctx context.Context, m Mapping, cols []string, vals []interface{}, key interface{}) error {
	var assignments []string
	var updateArgs []interface{}
	n := 0
	for i, col := range cols {
		if col == m.Key {
			continue
		}
		n++
		assignments = append(assignments, fmt.Sprintf("%s = %s", a.ident(col), a.placeholder(n)))
		updateArgs = append(updateArgs, vals[i])
	}

	if len(assignments) > 0 {
		q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", a.ident(m.Table), strings.Join(assignments, ", "), a.ident(m.Key), a.placeholder(n+1))
		updateArgs = append(updateArgs, key)

		if m.guardApplies(cols) {
			q += fmt.Sprintf(" AND (%s IS NULL OR %s <= %s)", a.ident(m.UpdatedAt), a.ident(m.UpdatedAt), a.placeholder(n+2))
			updateArgs = append(updateArgs, c2v(cols, vals, m.UpdatedAt))
		}

		res, err := a.db.ExecContext(ctx, q, updateArgs...)
		if err != nil {
			return errors.Errorf("applier: error updating row in %s: %s", m.Table, err)
		}

		count, _ := res.RowsAffected()
		if count > 0 {
			return nil
		}
	}

	var quoted, placeholders []string
	for i, col := range cols {
		quoted = append(quoted, a.ident(col))
		placeholders = append(placeholders, a.placeholder(i+1))
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", a.ident(m.Table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	_, err := a.db.ExecContext(ctx, q, vals...)
	if err != nil {
		if isDuplicateKeyErr(err) {
			log.Logger.WithFields(logrus.Fields{"table": m.Table, "key": key}).Debug("skipping stale change for existing row")
			return nil
		}
		return errors.Errorf("applier: error inserting row into %s: %s", m.Table, err)
	}

	return nil
}

func (a *Applier) ident(name string) string {
	if a.driver.Postgres() {
		return `"` + name + `"`
	}
	return "[" + name + "]"
}

func (a *Applier) placeholder(n int) string {
	if a.driver.Postgres() {
		return fmt.Sprintf("$%d", n)
	}
	return fmt.Sprintf("@p%d", n)
}

func (c Change) keyValue(m Mapping) (interface{}, bool) {
	if v, ok := c.Record[m.Key]; ok && v != nil {
		return v, true
	}
	if v, ok := c.OldRecord[m.Key]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// filterColumns projects the record onto the mapping's column whitelist in a
// stable order so generated SQL is deterministic.
func (m Mapping) filterColumns(record map[string]interface{}) ([]string, []interface{}) {
	var cols []string
	for col := range record {
		if m.hasColumn(col) {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)

	vals := make([]interface{}, len(cols))
	for i, col := range cols {
		vals[i] = record[col]
	}

	return cols, vals
}

func (m Mapping) guardApplies(cols []string) bool {
	if m.UpdatedAt == "" {
		return false
	}
	for _, col := range cols {
		if col == m.UpdatedAt {
			return true
		}
	}
	return false
}

func c2v(cols []string, vals []interface{}, col string) interface{} {
	for i, c := range cols {
		if c == col {
			return vals[i]
		}
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	if msErr, ok := errors.Cause(err).(mssql.Error); ok {
		return msErr.Number == 2627 || msErr.Number == 2601
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return false
}
