package test

import (
	"context"
	"errors"
	"sync"

	"shwanortho/clinic-sync-bridge/sync/applier"
)

type MockApplier struct {
	mu         sync.Mutex
	applied    []applier.Change
	failTables map[string]bool
	failAll    bool
}

func NewMockApplier() *MockApplier {
	return &MockApplier{
		failTables: map[string]bool{},
	}
}

func (ma *MockApplier) Apply(ctx context.Context, c applier.Change) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	if ma.failAll || ma.failTables[c.Table] {
		return errors.New("oops")
	}

	ma.applied = append(ma.applied, c)

	return nil
}

func (ma *MockApplier) AppliedChanges() []applier.Change {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	out := make([]applier.Change, len(ma.applied))
	copy(out, ma.applied)

	return out
}

func (ma *MockApplier) FailTable(table string) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.failTables[table] = true
}

func (ma *MockApplier) FailAll() {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.failAll = true
}
