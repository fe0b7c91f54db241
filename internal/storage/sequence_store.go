// Package storage persists the small pieces of bridge state that must
// survive restarts, currently the fiscal document sequence counter.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/juju/loggo"
)

var log = loggo.GetLogger("storage")

// sequenceData is the on-disk JSON shape.
type sequenceData struct {
	Next int `json:"next"`
}

// SequenceStore hands out monotonically increasing fiscal sequence
// numbers and persists the counter before each number is used, so a
// crash can never reissue one. Cancelled documents give their number
// back through Release.
type SequenceStore struct {
	mu       sync.Mutex
	next     int
	filePath string
}

// NewSequenceStore opens the counter file, creating it at 1 when it
// does not exist yet.
func NewSequenceStore(path string) (*SequenceStore, error) {
	s := &SequenceStore{filePath: path, next: 1}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("no sequence file at %s, starting at 1", path)
			return s, nil
		}
		return nil, fmt.Errorf("read sequence file: %w", err)
	}

	var sd sequenceData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parse sequence file %s: %w", path, err)
	}
	if sd.Next > 0 {
		s.next = sd.Next
	}
	log.Infof("sequence counter loaded from %s, next=%d", path, s.next)
	return s, nil
}

// Next returns the upcoming sequence number without reserving it.
func (s *SequenceStore) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reserve persists the advanced counter and then returns the reserved
// number. The write happens before the number is handed out: if it
// fails, nothing was reserved.
func (s *SequenceStore) Reserve() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	s.next = n + 1
	if err := s.saveLocked(); err != nil {
		s.next = n
		return 0, fmt.Errorf("persist sequence counter: %w", err)
	}
	log.Debugf("reserved sequence number %d", n)
	return n, nil
}

// Release rolls the counter back after a document that reserved n was
// cancelled before printing. Only the most recent reservation can be
// released; anything else is ignored, the number is simply skipped.
func (s *SequenceStore) Release(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next != n+1 {
		log.Debugf("sequence %d not released, counter already at %d", n, s.next)
		return
	}
	s.next = n
	if err := s.saveLocked(); err != nil {
		log.Warningf("sequence rollback not persisted: %v", err)
	}
}

// saveLocked writes the counter via a temp file and rename so a crash
// mid-write cannot corrupt it. Caller holds the mutex.
func (s *SequenceStore) saveLocked() error {
	data, err := json.MarshalIndent(sequenceData{Next: s.next}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sequence data: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sequence file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replace sequence file: %w", err)
	}
	return nil
}
