package sql

import (
	"strings"
	"testing"
)

func TestSqlServerQueryProvider_EntriesSuccessUpdateSql(t *testing.T) {
	actual := createSqlServerProvider().EntriesSuccessUpdateSql(3)

	exp := `UPDATE sync_outbox SET status = 'done', processed_at = SYSUTCDATETIME(), error_reason = '', attempts = attempts + 1 WHERE id IN (@p1, @p2, @p3)`

	if actual != exp {
		t.Errorf(`received "%s" but expected "%s"`, actual, exp)
	}
}

func TestSqlServerQueryProvider_BatchClaimSql(t *testing.T) {
	actual := createSqlServerProvider().BatchClaimSql(20)

	if !strings.Contains(actual, "SELECT TOP (20) id") {
		t.Errorf("batch claim SQL does not contain the correct batch size limit")
	}

	if !strings.Contains(actual, "status = 'pending'") {
		t.Errorf("batch claim SQL does not constrain the claim to pending entries")
	}
}

func TestSqlServerQueryProvider_EntryErroredUpdateSql(t *testing.T) {
	actual := createSqlServerProvider().EntryErroredUpdateSql(3)

	if !strings.Contains(actual, "status = CASE WHEN attempts + 1 >= 3 THEN 'failed' ELSE 'pending' END") {
		t.Errorf("entry errored SQL does not set the status as expected")
	}
}

func TestSqlServerQueryProvider_DeleteProcessedEntriesSql(t *testing.T) {
	actual := createSqlServerProvider().DeleteProcessedEntriesSql()

	if !strings.Contains(actual, "WHERE status = 'done' AND processed_at <= @p1") {
		t.Errorf("delete SQL does not contain a valid constraint")
	}
}

func TestSqlServerQueryProvider_GetQueueSizeSql(t *testing.T) {
	actual := createSqlServerProvider().GetQueueSizeSql()

	if !strings.Contains(actual, "status IN ('pending', 'processing')") {
		t.Errorf("queue size SQL does not count unprocessed entries")
	}
}

func createSqlServerProvider() *SqlServerQueryProvider {
	return &SqlServerQueryProvider{
		Columns: []string{"name", "foo"},
		Table:   "sync_outbox",
	}
}
