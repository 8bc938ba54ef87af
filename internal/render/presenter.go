package render

import "sync"

// Presenter owns the current display state and the one marker on a Surface.
// It is safe for concurrent use; presentations are serialized.
type Presenter struct {
	mu       sync.Mutex
	surface  Surface
	current  State
	markerID string
}

// NewPresenter creates a presenter and paints the initial placeholder state.
func NewPresenter(surface Surface) *Presenter {
	p := &Presenter{surface: surface}
	p.Present(Initial())
	return p
}

// Current returns the last presented state.
func (p *Presenter) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Update computes the next state from the current one and presents it
// atomically. The returned state is the one now displayed.
func (p *Presenter) Update(apply func(prev State) State) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := apply(p.current)
	p.present(next)
	return next
}

// Present paints a state onto the surface.
func (p *Presenter) Present(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.present(s)
}

func (p *Presenter) present(s State) {
	for _, f := range Fields() {
		p.surface.SetText(f, s.Text(f))
	}

	switch {
	case s.Marker == nil:
		p.removeMarker()
	case s.Status == StatusOK:
		// A successful update always replaces the marker: remove, then add.
		p.removeMarker()
		p.markerID = p.surface.AddMarker(*s.Marker)
	case p.markerID == "":
		// A kept marker that is not on the surface yet.
		p.markerID = p.surface.AddMarker(*s.Marker)
	}

	p.current = s
}

func (p *Presenter) removeMarker() {
	if p.markerID == "" {
		return
	}
	p.surface.RemoveMarker(p.markerID)
	p.markerID = ""
}
