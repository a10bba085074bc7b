package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/helmet-cv/server/models"
	"go.uber.org/zap"
)

type StoreConfig struct {
	MaxSessions     int
	TTL             time.Duration
	CleanupInterval time.Duration
	HubBuffer       int
	Defaults        models.Thresholds
}

// Store keeps sessions in memory. Idle sessions expire after TTL and the
// least recently used one is evicted when MaxSessions is reached.
type Store struct {
	items   map[string]*entry
	mutex   sync.RWMutex
	config  StoreConfig
	logger  *zap.Logger
	cleanup *time.Ticker
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
	onEvict func(*Session)
}

type entry struct {
	session   *Session
	expiresAt time.Time
	lastUsed  time.Time
}

type StoreStats struct {
	Sessions    int `json:"sessions"`
	MaxSessions int `json:"max_sessions"`
	Expired     int `json:"expired"`
}

func NewStore(config StoreConfig, logger *zap.Logger) *Store {
	if config.MaxSessions < 1 {
		config.MaxSessions = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Defaults == (models.Thresholds{}) {
		config.Defaults = DefaultThresholds
	}

	store := &Store{
		items:  make(map[string]*entry),
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	store.cleanup = time.NewTicker(config.CleanupInterval)
	go store.cleanupExpired()

	return store
}

// OnEvict registers a callback run for every session that expires or is
// evicted. It must be set before the store is used.
func (s *Store) OnEvict(fn func(*Session)) {
	s.onEvict = fn
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, false
	}

	now := s.now()
	if now.After(item.expiresAt) {
		s.remove(id)
		return nil, false
	}

	s.touch(item, now)
	return item.session, true
}

// GetOrCreate returns the live session for id, or a new one with a fresh id
// when id is empty, unknown or expired.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.items) >= s.config.MaxSessions {
		s.evictLRU()
	}

	now := s.now()
	sess := New(uuid.NewString(), s.config.Defaults, s.config.HubBuffer)
	sess.CreatedAt = now
	s.items[sess.ID] = &entry{session: sess}
	s.touch(s.items[sess.ID], now)

	s.logger.Debug("Session created", zap.String("session_id", sess.ID))
	return sess, true
}

func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}

func (s *Store) Stats() StoreStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := s.now()
	expired := 0
	for _, item := range s.items {
		if now.After(item.expiresAt) {
			expired++
		}
	}
	return StoreStats{Sessions: len(s.items), MaxSessions: s.config.MaxSessions, Expired: expired}
}

func (s *Store) Close() error {
	s.once.Do(func() {
		s.cleanup.Stop()
		close(s.stopCh)

		s.mutex.Lock()
		for id := range s.items {
			s.remove(id)
		}
		s.mutex.Unlock()
	})
	return nil
}

func (s *Store) touch(item *entry, now time.Time) {
	item.lastUsed = now
	item.expiresAt = now.Add(s.config.TTL)
}

// remove must be called with the write lock held.
func (s *Store) remove(id string) {
	item, ok := s.items[id]
	if !ok {
		return
	}
	delete(s.items, id)
	item.session.Hub.Close()
	if s.onEvict != nil {
		s.onEvict(item.session)
	}
}

func (s *Store) evictLRU() {
	var oldestID string
	var oldestTime time.Time

	for id, item := range s.items {
		if oldestID == "" || item.lastUsed.Before(oldestTime) {
			oldestID = id
			oldestTime = item.lastUsed
		}
	}

	if oldestID != "" {
		s.logger.Debug("Evicting least recently used session", zap.String("session_id", oldestID))
		s.remove(oldestID)
	}
}

func (s *Store) removeExpired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for id, item := range s.items {
		if now.After(item.expiresAt) {
			s.remove(id)
			removed++
		}
	}
	return removed
}

func (s *Store) cleanupExpired() {
	for {
		select {
		case <-s.cleanup.C:
			if n := s.removeExpired(); n > 0 {
				s.logger.Debug("Expired sessions removed", zap.Int("count", n))
			}
		case <-s.stopCh:
			return
		}
	}
}
