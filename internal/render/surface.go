package render

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Surface is the side-effecting boundary: text outputs plus a marker layer.
type Surface interface {
	// SetText replaces the text of a single output.
	SetText(field Field, text string)

	// AddMarker places a new marker and returns its identifier.
	AddMarker(m Marker) string

	// RemoveMarker deletes a marker. Unknown ids are ignored.
	RemoveMarker(id string)
}

// PlacedMarker is a marker currently on a surface.
type PlacedMarker struct {
	ID       string
	Marker   Marker
	PlacedAt time.Time
}

// MemorySurface is an in-process Surface. The browser shell polls its
// snapshot and mirrors it onto the DOM and the 3D scene.
type MemorySurface struct {
	mu      sync.RWMutex
	texts   map[Field]string
	markers map[string]PlacedMarker
}

// NewMemorySurface creates an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{
		texts:   make(map[Field]string),
		markers: make(map[string]PlacedMarker),
	}
}

// SetText implements Surface.
func (s *MemorySurface) SetText(field Field, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[field] = text
}

// AddMarker implements Surface.
func (s *MemorySurface) AddMarker(m Marker) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "mrk_" + uuid.NewString()
	s.markers[id] = PlacedMarker{ID: id, Marker: m, PlacedAt: time.Now()}
	return id
}

// RemoveMarker implements Surface.
func (s *MemorySurface) RemoveMarker(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, id)
}

// Snapshot is a consistent copy of a MemorySurface.
type Snapshot struct {
	Texts   map[Field]string
	Markers []PlacedMarker
}

// Snapshot returns a copy of the surface contents. Markers are ordered by placement time.
func (s *MemorySurface) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	texts := make(map[Field]string, len(s.texts))
	for k, v := range s.texts {
		texts[k] = v
	}

	markers := make([]PlacedMarker, 0, len(s.markers))
	for _, m := range s.markers {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].PlacedAt.Before(markers[j].PlacedAt) })

	return Snapshot{Texts: texts, Markers: markers}
}

// MarkerCount returns the number of markers on the surface.
func (s *MemorySurface) MarkerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

var _ Surface = (*MemorySurface)(nil)
