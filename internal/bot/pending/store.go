// Package pending bridges "a proof was submitted" and "a reviewer clicked
// approve". Entries live in a process-local map with a TTL and an item cap;
// they are not guaranteed to survive a restart; the inline fallback
// addressing handled by internal/bot/approval covers that case.
package pending

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is the claim context a reviewer action is matched against.
type Entry struct {
	ShortID     string
	UserID      int64
	PaymentType string
	ProductCode string
	RecordRef   string
	CreatedAt   time.Time
}

type item struct {
	entry     Entry
	expiresAt time.Time
}

// Store is a TTL'd, capped, mutex-guarded map of pending approvals.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxItems int
	data     map[string]item

	now func() time.Time
}

func NewStore(ttl time.Duration, maxItems int) *Store {
	return &Store{
		ttl:      ttl,
		maxItems: maxItems,
		data:     make(map[string]item),
		now:      time.Now,
	}
}

// newShortID returns 16 hex characters (64 bits) of a fresh v4 UUID.
func newShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Remember stores the entry and returns its key. When e.ShortID is empty a
// random short id is generated; callers that want the restart-safe composite
// addressing set ShortID to the inline token themselves.
func (s *Store) Remember(e Entry) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanup()

	if e.ShortID == "" {
		e.ShortID = newShortID()
		// regenerate on the (negligible) chance of a live collision
		for _, exists := s.data[e.ShortID]; exists; _, exists = s.data[e.ShortID] {
			e.ShortID = newShortID()
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.data[e.ShortID] = item{entry: e, expiresAt: s.now().Add(s.ttl)}
	return e.ShortID
}

// Get looks up a live entry by its key.
func (s *Store) Get(shortID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.data[shortID]
	if !ok {
		return Entry{}, false
	}
	if it.expiresAt.Before(s.now()) {
		delete(s.data, shortID)
		return Entry{}, false
	}
	return it.entry, true
}

// Forget removes an entry after a terminal decision.
func (s *Store) Forget(shortID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, shortID)
}

// Len reports the number of physically present entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// cleanup drops expired entries and, if the store is still over its cap,
// evicts the oldest ones. Caller holds the lock.
func (s *Store) cleanup() {
	now := s.now()
	for k, it := range s.data {
		if it.expiresAt.Before(now) {
			delete(s.data, k)
		}
	}

	for len(s.data) >= s.maxItems && s.maxItems > 0 {
		oldestKey := ""
		var oldest time.Time
		for k, it := range s.data {
			if oldestKey == "" || it.expiresAt.Before(oldest) {
				oldestKey = k
				oldest = it.expiresAt
			}
		}
		delete(s.data, oldestKey)
	}
}
