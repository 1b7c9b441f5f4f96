package workflow

import (
	"context"
	"sync"

	"github.com/BaSui01/crewflow/types"
)

// Store persists workflow records keyed by id. Update applies
// compare-and-swap semantics on the record version so lost updates
// surface instead of silently overwriting.
type Store interface {
	// Save creates a new record. The id must not already exist.
	Save(ctx context.Context, w *types.Workflow) error
	// Get returns the record or an ErrCodeNotFound error.
	Get(ctx context.Context, id string) (*types.Workflow, error)
	// Update persists w if its Version matches the stored one, then
	// increments the version. A mismatch fails with ErrCodeWorkflowBusy.
	Update(ctx context.Context, w *types.Workflow) error
	// Delete removes the record or fails with ErrCodeNotFound.
	Delete(ctx context.Context, id string) error
	// List returns all records.
	List(ctx context.Context) ([]*types.Workflow, error)
}

// MemoryStore is the in-process Store. It hands out clones so callers
// never share mutable state with persisted records.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*types.Workflow
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]*types.Workflow)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, w *types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[w.ID]; exists {
		return types.NewInvalidInputError("workflow already exists: " + w.ID)
	}
	s.workflows[w.ID] = w.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, types.NewNotFoundError("workflow", id)
	}
	return w.Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, w *types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.workflows[w.ID]
	if !ok {
		return types.NewNotFoundError("workflow", w.ID)
	}
	if stored.Version != w.Version {
		return types.NewError(types.ErrCodeWorkflowBusy,
			"concurrent update detected for workflow "+w.ID)
	}
	w.Version++
	s.workflows[w.ID] = w.Clone()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return types.NewNotFoundError("workflow", id)
	}
	delete(s.workflows, id)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w.Clone())
	}
	return out, nil
}
