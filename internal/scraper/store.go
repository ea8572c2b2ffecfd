package scraper

import (
	"sync"
	"time"
)

const defaultTTL = 30 * time.Minute

type storedBatch struct {
	deadlines map[string]string
	expires   time.Time
}

// DeadlineStore holds scraped deadlines between the extraction call and the
// import that consumes them. Entries are keyed by upload ID, expire after a
// TTL and are handed out exactly once.
type DeadlineStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]storedBatch
}

func NewDeadlineStore(ttl time.Duration) *DeadlineStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DeadlineStore{
		ttl:     ttl,
		entries: make(map[string]storedBatch),
	}
}

// Put stores the link-to-deadline map for an upload, replacing any previous
// batch under the same key.
func (s *DeadlineStore) Put(uploadID string, deadlines map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[uploadID] = storedBatch{
		deadlines: deadlines,
		expires:   time.Now().Add(s.ttl),
	}
	s.evictExpiredLocked()
}

// Take removes and returns the batch for an upload. A second Take for the
// same key, or a Take after the TTL, returns nil.
func (s *DeadlineStore) Take(uploadID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.entries[uploadID]
	if !ok {
		return nil
	}
	delete(s.entries, uploadID)

	if time.Now().After(batch.expires) {
		return nil
	}
	return batch.deadlines
}

func (s *DeadlineStore) evictExpiredLocked() {
	now := time.Now()
	for key, batch := range s.entries {
		if now.After(batch.expires) {
			delete(s.entries, key)
		}
	}
}
