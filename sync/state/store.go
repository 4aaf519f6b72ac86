package state

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shwanortho/clinic-sync-bridge/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// checkpointFile is the on-disk shape of the reverse-sync checkpoint.
type checkpointFile struct {
	LastSyncTimestamp *time.Time `json:"lastSyncTimestamp"`
}

// Status is the operational snapshot served by the status endpoint.
type Status struct {
	LastSync  *time.Time `json:"lastSync"`
	IsHealthy bool       `json:"isHealthy"`
}

// Store persists the last successful reverse-sync timestamp. The checkpoint
// only ever moves forward; a failed poll run leaves it where it was so the
// next run re-covers the same window.
type Store struct {
	path          string
	healthyWindow time.Duration

	mu       sync.Mutex
	lastSync *time.Time

	now func() time.Time
}

func NewStore(path string, healthyWindow time.Duration) (*Store, error) {
	s := &Store{
		path:          path,
		healthyWindow: healthyWindow,
		now:           time.Now,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	b, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		log.Logger.WithFields(logrus.Fields{"path": s.path}).Info("no sync checkpoint found, the next poll will do a full scan")
		return nil
	}
	if err != nil {
		return errors.Errorf("state: error reading checkpoint file %s: %s", s.path, err)
	}

	var cf checkpointFile
	if err := json.Unmarshal(b, &cf); err != nil {
		return errors.Errorf("state: error parsing checkpoint file %s: %s", s.path, err)
	}

	s.lastSync = cf.LastSyncTimestamp

	return nil
}

func (s *Store) LastSync() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSync
}

// Advance moves the checkpoint forward to t and persists it. Attempts to move
// it backwards are ignored so the checkpoint stays monotonic even if poll runs
// complete out of order.
func (s *Store) Advance(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSync != nil && t.Before(*s.lastSync) {
		log.Logger.WithFields(logrus.Fields{"checkpoint": s.lastSync, "requested": t}).Warn("ignoring attempt to move the sync checkpoint backwards")
		return nil
	}

	if err := s.persist(t); err != nil {
		return err
	}

	s.lastSync = &t

	return nil
}

// persist writes through a temp file and renames it over the checkpoint so a
// crash mid-write never leaves a truncated file behind.
func (s *Store) persist(t time.Time) error {
	b, err := json.Marshal(checkpointFile{LastSyncTimestamp: &t})
	if err != nil {
		return errors.Errorf("state: error encoding checkpoint: %s", err)
	}

	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := ioutil.WriteFile(tmp, b, 0644); err != nil {
		return errors.Errorf("state: error writing checkpoint file %s: %s", tmp, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Errorf("state: error replacing checkpoint file %s: %s", s.path, err)
	}

	return nil
}

func (s *Store) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		LastSync: s.lastSync,
	}

	if s.lastSync != nil {
		st.IsHealthy = s.now().Sub(*s.lastSync) < s.healthyWindow
	}

	return st
}
