package approval

import (
	"context"
	"sync"

	"github.com/BaSui01/crewflow/types"
)

// MemoryStore is the in-process approval Store.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

// NewMemoryStore creates an empty in-memory approval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

func cloneRequest(req *Request) *Request {
	cp := *req
	cp.Diagrams = append([]string(nil), req.Diagrams...)
	if req.Decision != nil {
		d := *req.Decision
		cp.Decision = &d
	}
	return &cp
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return types.NewInvalidInputError("approval already exists: " + req.ID)
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, types.NewNotFoundError("approval", id)
	}
	return cloneRequest(req), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return types.NewNotFoundError("approval", req.ID)
	}
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, status Status) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Request, 0, len(s.requests))
	for _, req := range s.requests {
		if status == "" || req.Status == status {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}
