package sql

import (
	"fmt"
	"strings"
)

type PostgresQueryProvider struct {
	Table   string
	Columns []string
}

func (p PostgresQueryProvider) BatchClaimSql(batchSize int) string {
	q := `UPDATE %s SET batch_id = $1, status = 'processing', claimed_at = NOW()
		WHERE id IN(
			SELECT id FROM %s WHERE status = 'pending' OR
		(status = 'processing' AND claimed_at < $2) ORDER BY created_at ASC LIMIT %d)`

	return fmt.Sprintf(q, p.Table, p.Table, batchSize)
}

func (p PostgresQueryProvider) BatchFetchSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE batch_id = $1 ORDER BY created_at ASC`, strings.Join(p.Columns, ", "), p.Table)
}

func (p PostgresQueryProvider) EntriesSuccessUpdateSql(idCount int) string {
	q := `UPDATE %s SET status = 'done', processed_at = NOW(), error_reason = '', attempts = attempts + 1 WHERE id IN (%s)`

	var placeholders []string
	for i := 1; i <= idCount; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}

	return fmt.Sprintf(q, p.Table, strings.Join(placeholders, ", "))
}

func (p PostgresQueryProvider) EntryErroredUpdateSql(maxAttempts int) string {
	q := `UPDATE %s SET error_reason = $1, status = CASE WHEN attempts + 1 >= %d THEN 'failed' ELSE 'pending' END, claimed_at = NULL, batch_id = NULL, attempts = attempts + 1 WHERE id = $2`

	return fmt.Sprintf(q, p.Table, maxAttempts)
}

func (p PostgresQueryProvider) DeleteProcessedEntriesSql() string {
	return fmt.Sprintf("DELETE FROM %s WHERE status = 'done' AND processed_at <= $1", p.Table)
}

func (p PostgresQueryProvider) GetQueueSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status IN ('pending', 'processing')", p.Table)
}

func (p PostgresQueryProvider) GetTotalSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", p.Table)
}
