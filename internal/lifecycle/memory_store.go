package lifecycle

import (
	"context"
	"sort"
	"sync"

	"cshealth/internal/clock"
	"cshealth/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps lifecycle state in process memory for single-instance mode.
// Params: guarded map keyed by alert ID, injected clock, and note ID generator.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clock.Clock
	newID   func() string
	entries map[string]domain.StoredUpdate
}

// NewMemoryStore creates in-memory lifecycle store.
// Params: clock (defaults to real UTC clock when nil).
// Returns: initialized store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{
		clock:   clk,
		newID:   uuid.NewString,
		entries: make(map[string]domain.StoredUpdate),
	}
}

// Get returns stored state for alert ID.
// Params: alert ID.
// Returns: state copy or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, alertID string) (domain.StoredUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[alertID]
	if !ok {
		return domain.StoredUpdate{}, ErrNotFound
	}
	return cloneStored(entry), nil
}

// Upsert merges update under the store lock.
// Params: alert ID and partial update.
// Returns: changed fields, created note, and merged state.
func (s *MemoryStore) Upsert(_ context.Context, alertID string, update domain.AlertUpdate) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed, note := ApplyUpdate(s.entries[alertID], alertID, update, s.clock.Now(), s.newID)
	s.entries[alertID] = next
	return UpsertResult{Changed: changed, Note: note, Stored: cloneStored(next)}, nil
}

// List returns every stored state ordered by alert ID.
func (s *MemoryStore) List(_ context.Context) ([]domain.StoredUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StoredUpdate, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, cloneStored(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertID < out[j].AlertID })
	return out, nil
}

// Close releases memory store resources.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneStored(src domain.StoredUpdate) domain.StoredUpdate {
	src.Notes = append([]domain.AlertNote(nil), src.Notes...)
	return src
}
