//go:build integration
// +build integration

package integration

import (
	"database/sql"
	"errors"
	"fmt"

	syncpkg "shwanortho/clinic-sync-bridge/sync"
)

var mirrorTables = []string{"Patients", "Appointments", "AlignerSets", "AlignerSteps", "WhatsAppMessages"}

// the production source database already carries the clinic tables; the
// integration source database only gets the outbox from migrations, so the
// tables the reverse sync writes to are created here
func ensureSourceClinicTablesExist() {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS "Patients" (
			"PatientID" INT NOT NULL PRIMARY KEY,
			"FirstName" VARCHAR(128) NULL,
			"LastName" VARCHAR(128) NULL,
			"Phone" VARCHAR(32) NULL,
			"Email" VARCHAR(256) NULL,
			"DateOfBirth" DATE NULL,
			"Notes" TEXT NULL,
			"UpdatedAt" TIMESTAMP WITHOUT TIME ZONE NULL
		);`,
		`CREATE TABLE IF NOT EXISTS "Appointments" (
			"AppointmentID" INT NOT NULL PRIMARY KEY,
			"PatientID" INT NULL,
			"AppointmentDate" TIMESTAMP WITHOUT TIME ZONE NULL,
			"AppointmentType" VARCHAR(64) NULL,
			"Present" BOOLEAN NULL,
			"Seated" BOOLEAN NULL,
			"Dismissed" BOOLEAN NULL,
			"Notes" TEXT NULL,
			"UpdatedAt" TIMESTAMP WITHOUT TIME ZONE NULL
		);`,
		`CREATE TABLE IF NOT EXISTS "AlignerSets" (
			"AlignerSetID" INT NOT NULL PRIMARY KEY,
			"PatientID" INT NULL,
			"StartDate" DATE NULL,
			"TotalAligners" INT NULL,
			"CurrentAligner" INT NULL,
			"WearDays" INT NULL,
			"Notes" TEXT NULL,
			"UpdatedAt" TIMESTAMP WITHOUT TIME ZONE NULL
		);`,
		`CREATE TABLE IF NOT EXISTS "AlignerSteps" (
			"AlignerStepID" INT NOT NULL PRIMARY KEY,
			"AlignerSetID" INT NULL,
			"StepNumber" INT NULL,
			"DeliveredDate" DATE NULL,
			"Notes" TEXT NULL,
			"UpdatedAt" TIMESTAMP WITHOUT TIME ZONE NULL
		);`,
		`CREATE TABLE IF NOT EXISTS "WhatsAppMessages" (
			"MessageID" INT NOT NULL PRIMARY KEY,
			"PatientID" INT NULL,
			"Direction" VARCHAR(16) NULL,
			"Body" TEXT NULL,
			"SentAt" TIMESTAMP WITHOUT TIME ZONE NULL,
			"DeliveryStatus" VARCHAR(32) NULL,
			"UpdatedAt" TIMESTAMP WITHOUT TIME ZONE NULL
		);`,
	}

	for _, q := range stmts {
		if _, err := dbs.Source.Exec(q); err != nil {
			panic(fmt.Sprintf("an error occurred creating the clinic tables for integration tests: %s", err))
		}
	}
}

func purgeSourceClinicTables() {
	for _, t := range mirrorTables {
		_, err := dbs.Source.Exec(fmt.Sprintf(`TRUNCATE TABLE "%s";`, t))
		if err != nil {
			panic(fmt.Sprintf("an error occurred cleaning the %s source table for tests: %s", t, err))
		}
	}
}

func purgeOutboxTable() {
	_, err := dbs.Source.Exec(fmt.Sprintf("TRUNCATE TABLE %s;", cfg.OutboxTable))
	if err != nil {
		panic(fmt.Sprintf("an error occurred cleaning the outbox table for tests: %s", err))
	}
}

func purgeMirrorTables() {
	for _, t := range mirrorTables {
		_, err := dbs.Mirror.Exec(fmt.Sprintf(`TRUNCATE TABLE "%s";`, t))
		if err != nil {
			panic(fmt.Sprintf("an error occurred cleaning the %s mirror table for tests: %s", t, err))
		}
	}
}

func insertOutboxEntries(entries []*syncpkg.Entry) {
	tx, err := dbs.Source.Begin()
	if err != nil {
		panic(fmt.Sprintf("error creating a DB transaction: %s", err))
	}

	for _, e := range entries {
		if e.Status == "" {
			e.Status = syncpkg.StatusPending
		}

		q := fmt.Sprintf("INSERT INTO %s(batch_id, table_name, row_id, operation, payload, status, attempts, claimed_at, processed_at) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id;", cfg.OutboxTable)

		var id int64
		err = tx.QueryRow(q, e.BatchId, e.TableName, e.RowID, e.Operation, e.Payload, e.Status, e.Attempts, e.ClaimedAt, e.ProcessedAt).Scan(&id)
		if err != nil {
			panic(fmt.Sprintf("failed to insert outbox entry: %s", err))
		}
		e.Id = uint(id)
	}

	err = tx.Commit()
	if err != nil {
		panic(fmt.Sprintf("error committing DB transaction: %s", err))
	}
}

func getOutboxEntry(id uint) *syncpkg.Entry {
	q := fmt.Sprintf("SELECT id, batch_id, table_name, row_id, operation, payload, status, attempts, created_at, claimed_at, processed_at FROM %s WHERE id = $1", cfg.OutboxTable)

	e := &syncpkg.Entry{}
	row := dbs.Source.QueryRow(q, id)
	err := row.Scan(&e.Id, &e.BatchId, &e.TableName, &e.RowID, &e.Operation, &e.Payload, &e.Status, &e.Attempts, &e.CreatedAt, &e.ClaimedAt, &e.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			panic(fmt.Sprintf("no outbox entries found with ID %d", id))
		}
		panic(fmt.Sprintf("an error occurred scanning the outbox entry: %s", err))
	}

	return e
}

func outboxEntryExists(id uint) bool {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = $1", cfg.OutboxTable)

	var count int
	res := dbs.Source.QueryRow(q, id)
	if err := res.Scan(&count); err != nil {
		panic(err)
	}

	return count > 0
}

func mirrorRowExists(db *sql.DB, table, key string, id interface{}) bool {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM "%s" WHERE "%s" = $1`, table, key)

	var count int
	res := db.QueryRow(q, id)
	if err := res.Scan(&count); err != nil {
		panic(err)
	}

	return count > 0
}

func mirrorColumnValue(db *sql.DB, table, key string, id interface{}, column string) string {
	q := fmt.Sprintf(`SELECT COALESCE("%s"::text, '') FROM "%s" WHERE "%s" = $1`, column, table, key)

	var v string
	res := db.QueryRow(q, id)
	if err := res.Scan(&v); err != nil {
		panic(fmt.Sprintf("an error occurred scanning the %s.%s value: %s", table, column, err))
	}

	return v
}
