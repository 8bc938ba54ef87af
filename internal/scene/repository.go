package scene

import (
	"context"
	"errors"
)

// ErrViewNotFound is returned when a view is not stored.
var ErrViewNotFound = errors.New("view not found")

// Repository defines the interface for view storage.
type Repository interface {
	// GetView retrieves a view by id.
	GetView(ctx context.Context, id string) (*View, error)

	// SaveView creates or replaces a view.
	SaveView(ctx context.Context, view *View) error

	// DeleteView removes a view by id.
	DeleteView(ctx context.Context, id string) error
}
