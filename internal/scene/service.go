package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cityscope/cityscope/internal/airquality"
)

// ServiceConfig holds configuration for the scene service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL is how long the view is cached in memory (default: 1m).
	CacheTTL time.Duration

	// Center is the home coordinate of the default camera.
	Center airquality.Coordinate

	// ProposedBuildingAvailable enables the proposed-building layer.
	ProposedBuildingAvailable bool
}

// Service reads and mutates the shared view with caching and a default fallback.
type Service struct {
	repo              Repository
	logger            zerolog.Logger
	cacheTTL          time.Duration
	center            airquality.Coordinate
	proposedAvailable bool

	// writeMu serializes read-modify-write cycles.
	writeMu sync.Mutex

	mu          sync.RWMutex
	cached      *View
	cacheExpiry time.Time
}

// NewService creates a new scene service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Minute
	}

	center := cfg.Center
	if center == (airquality.Coordinate{}) {
		center = airquality.DefaultCoordinate
	}

	return &Service{
		repo:              cfg.Repository,
		logger:            cfg.Logger,
		cacheTTL:          cacheTTL,
		center:            center,
		proposedAvailable: cfg.ProposedBuildingAvailable,
	}
}

// ProposedBuildingAvailable reports whether the proposed-building layer can be toggled.
func (s *Service) ProposedBuildingAvailable() bool {
	return s.proposedAvailable
}

// GetView returns the current view. Storage errors fall back to the default view.
func (s *Service) GetView(ctx context.Context) *View {
	if v := s.getCached(); v != nil {
		return v
	}

	view, err := s.repo.GetView(ctx, DefaultViewID)
	if err == nil {
		s.setCached(view)
		return view.Clone()
	}

	if !errors.Is(err, ErrViewNotFound) {
		s.logger.Warn().Err(err).Msg("failed to get scene view from repository, using default")
	}
	return DefaultView(s.center)
}

// FlyTo moves the camera.
func (s *Service) FlyTo(ctx context.Context, camera Camera) (*View, error) {
	if err := camera.Validate(); err != nil {
		return nil, err
	}
	return s.update(ctx, func(v *View) error {
		v.Camera = camera
		return nil
	})
}

// SetBasemap switches the base tileset.
func (s *Service) SetBasemap(ctx context.Context, name string) (*View, error) {
	basemap, err := ParseBasemap(name)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, func(v *View) error {
		v.Basemap = basemap
		return nil
	})
}

// SetHighlightStyle switches how buildings are colored.
func (s *Service) SetHighlightStyle(ctx context.Context, name string) (*View, error) {
	style, err := ParseHighlightStyle(name)
	if err != nil {
		return nil, err
	}
	if style == HighlightProposed && !s.proposedAvailable {
		return nil, fmt.Errorf("%w: no proposed building asset configured", ErrLayerUnavailable)
	}
	return s.update(ctx, func(v *View) error {
		v.HighlightStyle = style
		return nil
	})
}

// SetLayer toggles an overlay.
func (s *Service) SetLayer(ctx context.Context, name string, enabled bool) (*View, error) {
	layer, err := ParseLayer(name)
	if err != nil {
		return nil, err
	}
	if layer == LayerProposedBuilding && !s.proposedAvailable {
		return nil, fmt.Errorf("%w: %s", ErrLayerUnavailable, layer)
	}
	return s.update(ctx, func(v *View) error {
		v.Layers[layer] = enabled
		return nil
	})
}

// Reset restores the default view.
func (s *Service) Reset(ctx context.Context) (*View, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	view := DefaultView(s.center)
	if err := s.repo.SaveView(ctx, view); err != nil {
		return nil, fmt.Errorf("saving view: %w", err)
	}
	s.setCached(view)

	s.logger.Info().Msg("scene view reset")
	return view.Clone(), nil
}

// InvalidateCache forces the next read to go to the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cached = nil
	s.cacheExpiry = time.Time{}
	s.mu.Unlock()
}

func (s *Service) update(ctx context.Context, mutate func(v *View) error) (*View, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	view := s.GetView(ctx)
	if err := mutate(view); err != nil {
		return nil, err
	}
	if err := s.repo.SaveView(ctx, view); err != nil {
		return nil, fmt.Errorf("saving view: %w", err)
	}
	s.setCached(view)
	return view.Clone(), nil
}

func (s *Service) getCached() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cached == nil || time.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.cached.Clone()
}

func (s *Service) setCached(v *View) {
	s.mu.Lock()
	s.cached = v.Clone()
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()
}
