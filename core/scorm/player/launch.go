package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

var ErrLaunchNotFound = errors.New("launch not found")

// Launch is the capability handed to a content frame. It binds the frame to one session
// and lives until the content terminates or the frame goes away.
type Launch struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	PackageID string        `json:"package_id"`
	Learner   scorm.Learner `json:"learner"`
	Version   scorm.Version `json:"version"`
	EntryURL  string        `json:"entry_url"`
	CreatedAt time.Time     `json:"created_at"` // UTC
}

// LaunchStore keeps launches reachable from every API process.
type LaunchStore interface {
	Save(ctx context.Context, l Launch) error
	// Get returns ErrLaunchNotFound for unknown or expired launches.
	Get(ctx context.Context, id string) (Launch, error)
	Delete(ctx context.Context, id string) error
}

// MemoryLaunchStore is a process-local LaunchStore.
type MemoryLaunchStore struct {
	mu       sync.RWMutex
	launches map[string]Launch
}

var _ LaunchStore = (*MemoryLaunchStore)(nil)

func NewMemoryLaunchStore() *MemoryLaunchStore {
	return &MemoryLaunchStore{launches: make(map[string]Launch)}
}

func (s *MemoryLaunchStore) Save(_ context.Context, l Launch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches[l.ID] = l
	return nil
}

func (s *MemoryLaunchStore) Get(_ context.Context, id string) (Launch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.launches[id]; ok {
		return l, nil
	}
	return Launch{}, ErrLaunchNotFound
}

func (s *MemoryLaunchStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.launches, id)
	return nil
}
