package test

import (
	"errors"
	"sync"
	"time"

	syncpkg "shwanortho/clinic-sync-bridge/sync"
)

type MockRepository struct {
	sync.RWMutex
	claimBatchCallCount int
	mockQueueSize       uint
	mockTotalSize       uint
	batchesToReturn     []*syncpkg.Batch
	committed           map[*syncpkg.Batch]bool
	batchesCommitted    []*syncpkg.Batch
	returnError         bool
	deletedRowsCount    int64
	returnNoEntriesErr  bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		batchesToReturn: []*syncpkg.Batch{},
		committed:       map[*syncpkg.Batch]bool{},
	}
}

func (mr *MockRepository) ClaimBatch() (*syncpkg.Batch, error) {
	mr.Lock()
	defer mr.Unlock()
	mr.claimBatchCallCount++

	if mr.returnNoEntriesErr {
		return nil, syncpkg.ErrNoEntries
	}

	if mr.returnError {
		return nil, errors.New("oops")
	}

	return mr.popBatch(), nil
}

func (mr *MockRepository) CommitBatch(batch *syncpkg.Batch) {
	mr.Lock()
	defer mr.Unlock()
	mr.batchesCommitted = append(mr.batchesCommitted, batch)
	mr.committed[batch] = true
}

func (mr *MockRepository) AddBatch(batch *syncpkg.Batch) {
	mr.Lock()
	defer mr.Unlock()
	mr.batchesToReturn = append(mr.batchesToReturn, batch)
}

func (mr *MockRepository) BatchWasCommitted(batch *syncpkg.Batch) bool {
	mr.RLock()
	defer mr.RUnlock()
	return mr.committed[batch]
}

func (mr *MockRepository) DeleteProcessed(olderThan time.Time) (int64, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}
	return mr.deletedRowsCount, nil
}

func (mr *MockRepository) GetQueueSize() (uint, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.mockQueueSize, nil
}

func (mr *MockRepository) GetTotalSize() (uint, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.mockTotalSize, nil
}

func (mr *MockRepository) ClaimBatchCallCount() int {
	mr.RLock()
	defer mr.RUnlock()
	return mr.claimBatchCallCount
}

func (mr *MockRepository) ReturnErrors() {
	mr.returnError = true
}

func (mr *MockRepository) ReturnNoEntriesError() {
	mr.returnNoEntriesErr = true
}

func (mr *MockRepository) SetQueueSize(size uint) {
	mr.mockQueueSize = size
}

func (mr *MockRepository) SetTotalSize(size uint) {
	mr.mockTotalSize = size
}

func (mr *MockRepository) SetDeletedRowsCount(c int64) {
	mr.deletedRowsCount = c
}

func (mr *MockRepository) popBatch() *syncpkg.Batch {
	if len(mr.batchesToReturn) == 0 {
		return nil
	}

	var b *syncpkg.Batch
	b, mr.batchesToReturn = mr.batchesToReturn[0], mr.batchesToReturn[1:]

	return b
}
