package sql

import (
	"fmt"
	"strings"
)

type SqlServerQueryProvider struct {
	Table   string
	Columns []string
}

func (p SqlServerQueryProvider) BatchClaimSql(batchSize int) string {
	q := `UPDATE %s SET batch_id = @p1, status = 'processing', claimed_at = SYSUTCDATETIME()
		WHERE id IN(
			SELECT TOP (%d) id FROM %s WHERE status = 'pending' OR
		(status = 'processing' AND claimed_at < @p2) ORDER BY created_at ASC)`

	return fmt.Sprintf(q, p.Table, batchSize, p.Table)
}

func (p SqlServerQueryProvider) BatchFetchSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE batch_id = @p1 ORDER BY created_at ASC`, strings.Join(p.Columns, ", "), p.Table)
}

func (p SqlServerQueryProvider) EntriesSuccessUpdateSql(idCount int) string {
	q := `UPDATE %s SET status = 'done', processed_at = SYSUTCDATETIME(), error_reason = '', attempts = attempts + 1 WHERE id IN (%s)`

	var placeholders []string
	for i := 1; i <= idCount; i++ {
		placeholders = append(placeholders, fmt.Sprintf("@p%d", i))
	}

	return fmt.Sprintf(q, p.Table, strings.Join(placeholders, ", "))
}

func (p SqlServerQueryProvider) EntryErroredUpdateSql(maxAttempts int) string {
	q := `UPDATE %s SET error_reason = @p1, status = CASE WHEN attempts + 1 >= %d THEN 'failed' ELSE 'pending' END, claimed_at = NULL, batch_id = NULL, attempts = attempts + 1 WHERE id = @p2`

	return fmt.Sprintf(q, p.Table, maxAttempts)
}

func (p SqlServerQueryProvider) DeleteProcessedEntriesSql() string {
	return fmt.Sprintf("DELETE FROM %s WHERE status = 'done' AND processed_at <= @p1", p.Table)
}

func (p SqlServerQueryProvider) GetQueueSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status IN ('pending', 'processing')", p.Table)
}

func (p SqlServerQueryProvider) GetTotalSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", p.Table)
}
