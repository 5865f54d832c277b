// Package session persists the URLs that failed in earlier runs so they are
// not attempted again until the record is cleared.
package session

import (
	"path/filepath"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"favesave/internal/runstore"
)

// FileName is the session record kept next to the downloaded files.
const FileName = "favesave_errors.json"

type record struct {
	Blocked []string `json:"blocked"`
	Failed  []string `json:"failed"`
}

// Store holds the blocked and failed URL sets of one destination directory.
// Every mutation is flushed to disk before it returns.
type Store struct {
	dir    string
	logger *log.Entry

	mu      sync.RWMutex
	blocked map[string]struct{}
	failed  map[string]struct{}
}

func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the record for dir. A missing or malformed record yields an
// empty store.
func Load(dir string, logger *log.Entry) *Store {
	s := &Store{
		dir:     dir,
		logger:  logger,
		blocked: map[string]struct{}{},
		failed:  map[string]struct{}{},
	}
	var rec record
	if err := runstore.ReadJSON(Path(dir), &rec); err != nil {
		logger.WithError(err).Debug("no usable session record, starting empty")
		return s
	}
	for _, u := range rec.Blocked {
		s.blocked[u] = struct{}{}
	}
	for _, u := range rec.Failed {
		s.failed[u] = struct{}{}
	}
	return s
}

// Clear deletes the record and empties the store. It reports whether a
// record existed.
func (s *Store) Clear() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = map[string]struct{}{}
	s.failed = map[string]struct{}{}
	return runstore.Remove(Path(s.dir))
}

func (s *Store) IsBlocked(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocked[url]
	return ok
}

func (s *Store) IsFailed(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.failed[url]
	return ok
}

func (s *Store) MarkBlocked(url string) {
	s.mark(s.blocked, url)
}

func (s *Store) MarkFailed(url string) {
	s.mark(s.failed, url)
}

func (s *Store) mark(set map[string]struct{}, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set[url] = struct{}{}
	s.saveLocked()
}

// Save writes the full record. Failures are logged; the in-memory sets are
// kept either way.
func (s *Store) Save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
}

func (s *Store) saveLocked() {
	rec := s.snapshotLocked()
	if err := runstore.WriteJSON(Path(s.dir), rec); err != nil {
		s.logger.WithError(err).Warn("could not save session record")
	}
}

// Snapshot returns sorted copies of both sets.
func (s *Store) Snapshot() (blocked, failed []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.snapshotLocked()
	return rec.Blocked, rec.Failed
}

func (s *Store) snapshotLocked() record {
	rec := record{
		Blocked: make([]string, 0, len(s.blocked)),
		Failed:  make([]string, 0, len(s.failed)),
	}
	for u := range s.blocked {
		rec.Blocked = append(rec.Blocked, u)
	}
	for u := range s.failed {
		rec.Failed = append(rec.Failed, u)
	}
	slices.Sort(rec.Blocked)
	slices.Sort(rec.Failed)
	return rec
}
