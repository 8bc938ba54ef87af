package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Provider health states reported by ProviderHealth.Status.
const (
	StatusOK       = "OK"
	StatusDegraded = "DEGRADED"
	StatusDown     = "DOWN"
)

// ProviderHealth is a point-in-time view of one provider.
type ProviderHealth struct {
	Name         string
	CircuitState gobreaker.State

	// ConsecutiveFailures is the breaker's current failure streak.
	ConsecutiveFailures uint32

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status is DOWN while the breaker is open and DEGRADED while it is half-open
// or the most recent observed call failed.
func (h *ProviderHealth) Status() string {
	switch {
	case h.CircuitState == gobreaker.StateOpen:
		return StatusDown
	case h.CircuitState == gobreaker.StateHalfOpen:
		return StatusDegraded
	case h.LastFailureAt != nil && (h.LastSuccessAt == nil || !h.LastFailureAt.Before(*h.LastSuccessAt)):
		return StatusDegraded
	default:
		return StatusOK
	}
}

type breakerStats interface {
	CircuitBreakerState() gobreaker.State
	CircuitBreakerCounts() gobreaker.Counts
}

// Registry tracks provider outcomes for /v1/ops/status. Outcomes are recorded
// both by the HTTP client and by provider clients for failures found in an
// otherwise successful response body.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerEntry
	now       func() time.Time
}

type providerEntry struct {
	breaker       breakerStats
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*providerEntry),
		now:       time.Now,
	}
}

// Register adds a client under name, replacing any previous entry.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &providerEntry{breaker: client}
}

// Observe records the outcome of a call. Cancelled calls are ignored.
func (r *Registry) Observe(name string, err error) {
	switch {
	case err == nil:
		r.RecordSuccess(name)
	case Cancelled(err):
	default:
		r.RecordFailure(name, err)
	}
}

// RecordSuccess records a successful call. Unknown providers are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call. Unknown providers are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		now := r.now()
		p.lastFailureAt = &now
		if err != nil {
			p.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of one provider, or nil if it is unknown.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil
	}
	return p.health(name)
}

// GetAllHealth returns every provider's health, sorted by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*ProviderHealth, 0, len(r.providers))
	for name, p := range r.providers {
		health = append(health, p.health(name))
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return health
}

func (p *providerEntry) health(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:                name,
		CircuitState:        p.breaker.CircuitBreakerState(),
		ConsecutiveFailures: p.breaker.CircuitBreakerCounts().ConsecutiveFailures,
		LastSuccessAt:       p.lastSuccessAt,
		LastFailureAt:       p.lastFailureAt,
		LastError:           p.lastError,
	}
}
