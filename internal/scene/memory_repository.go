package scene

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	views map[string]*View
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		views: make(map[string]*View),
	}
}

// GetView retrieves a view by id.
func (r *InMemoryRepository) GetView(ctx context.Context, id string) (*View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	view, ok := r.views[id]
	if !ok {
		return nil, ErrViewNotFound
	}
	return view.Clone(), nil
}

// SaveView creates or replaces a view.
func (r *InMemoryRepository) SaveView(ctx context.Context, view *View) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	view.UpdatedAt = time.Now()
	r.views[view.ID] = view.Clone()
	return nil
}

// DeleteView removes a view by id.
func (r *InMemoryRepository) DeleteView(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.views, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
