package sync

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// ParseOperation normalises an operation name from an outbox row or a webhook
// payload. Webhook senders use the upper-case form (INSERT, UPDATE, DELETE).
func ParseOperation(s string) (Operation, error) {
	switch Operation(strings.ToLower(s)) {
	case OpInsert:
		return OpInsert, nil
	case OpUpdate:
		return OpUpdate, nil
	case OpDelete:
		return OpDelete, nil
	}

	return "", errors.Errorf("sync: unknown operation %q", s)
}

type Batch struct {
	Id      uuid.UUID
	Entries []*Entry
}

type Entry struct {
	Id          uint
	BatchId     *uuid.UUID
	TableName   string
	RowID       string
	Operation   Operation
	Payload     []byte
	Status      Status
	Attempts    int
	ErrorReason error
	CreatedAt   sql.NullTime
	ClaimedAt   sql.NullTime
	ProcessedAt sql.NullTime
}
