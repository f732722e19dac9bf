// internal/session/memory.go
package session

import (
	"context"
	"sync"
	"time"

	"meal-companion/internal/models"
)

// MemoryStore keeps sessions in process memory. State is lost on restart;
// use the sqlite backend when sessions must survive one.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	now      func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		now:      now,
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return models.Session{ID: id, StartTime: s.now()}, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, analysis models.CaptureAnalysis) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = models.Session{ID: id, StartTime: s.now()}
	}
	sess.TotalConsumed += analysis.ConsumedSinceLast
	sess.Captures++
	s.sessions[id] = sess
	return sess, nil
}

func (s *MemoryStore) End(_ context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrNotFound
	}
	delete(s.sessions, id)
	return sess, nil
}

var _ Store = (*MemoryStore)(nil)
