// Package poller periodically fetches air quality for a coordinate and
// presents each result on a render surface.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/render"
)

// Poller errors.
var (
	ErrAlreadyRunning  = errors.New("poller already running")
	ErrNotRunning      = errors.New("poller not running")
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// Fetcher fetches a single reading for a coordinate.
type Fetcher interface {
	FetchOnce(ctx context.Context, coord airquality.Coordinate) (*airquality.Reading, error)
}

// Sink receives every reading that was rendered successfully.
type Sink interface {
	Publish(ctx context.Context, reading *airquality.Reading) error
}

// Config holds configuration for the poller.
type Config struct {
	Fetcher   Fetcher
	Presenter *render.Presenter

	// Policy controls marker handling on failure.
	Policy render.Policy

	// Sink is optional.
	Sink Sink

	// Metrics is optional.
	Metrics *Metrics

	Logger zerolog.Logger

	// RequestTimeout bounds a single fetch (default: 15s).
	RequestTimeout time.Duration

	// PublishTimeout bounds a single sink publish (default: 5s).
	PublishTimeout time.Duration
}

// Poller runs the fetch → render loop. Every fetch carries a generation and a
// sequence number: a result is rendered only if its generation is current and
// it is newer than the last rendered result.
type Poller struct {
	fetcher        Fetcher
	presenter      *render.Presenter
	policy         render.Policy
	sink           Sink
	metrics        *Metrics
	logger         zerolog.Logger
	requestTimeout time.Duration
	publishTimeout time.Duration

	seq atomic.Uint64

	mu           sync.Mutex
	running      bool
	coord        airquality.Coordinate
	interval     time.Duration
	generation   uint64
	runCtx       context.Context
	genCtx       context.Context
	genCancel    context.CancelFunc
	stop         context.CancelFunc
	done         chan struct{}
	fetches      *sync.WaitGroup
	lastRendered uint64
	stats        Stats
}

// Stats are cumulative poller counters.
type Stats struct {
	Fetches       int64
	Successes     int64
	Failures      int64
	Discarded     int64
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
	LastErrorKind string
}

// Status is a point-in-time view of the poller.
type Status struct {
	Running    bool
	Coordinate airquality.Coordinate
	Interval   time.Duration
	Generation uint64
	Stats
}

// token identifies one fetch.
type token struct {
	generation uint64
	seq        uint64
	coord      airquality.Coordinate
}

// New creates a poller. It does not start polling.
func New(cfg Config) *Poller {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 15 * time.Second
	}
	publishTimeout := cfg.PublishTimeout
	if publishTimeout == 0 {
		publishTimeout = 5 * time.Second
	}

	return &Poller{
		fetcher:        cfg.Fetcher,
		presenter:      cfg.Presenter,
		policy:         cfg.Policy,
		sink:           cfg.Sink,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		requestTimeout: requestTimeout,
		publishTimeout: publishTimeout,
		coord:          airquality.DefaultCoordinate,
	}
}

// Start fetches immediately and then once per interval until Stop is called
// or ctx is cancelled.
func (p *Poller) Start(ctx context.Context, coord airquality.Coordinate, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if err := coord.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, stop := context.WithCancel(ctx)
	p.running = true
	p.runCtx = runCtx
	p.stop = stop
	p.done = make(chan struct{})
	p.fetches = &sync.WaitGroup{}
	p.interval = interval
	p.coord = coord
	p.nextGenerationLocked(runCtx)
	done, fetches := p.done, p.fetches
	p.mu.Unlock()

	p.logger.Info().
		Str("coordinate", coord.String()).
		Dur("interval", interval).
		Msg("air quality poller started")

	go p.loop(runCtx, interval, done, fetches)
	return nil
}

// Stop cancels the loop and every in-flight fetch, and waits for them to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stop()
	done := p.done
	p.mu.Unlock()

	<-done
	p.logger.Info().Msg("air quality poller stopped")
}

// SetCoordinate replaces the target for subsequent fetches. In-flight fetches
// for the previous coordinate are cancelled and their results discarded.
func (p *Poller) SetCoordinate(coord airquality.Coordinate) error {
	if err := coord.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCoordinateLocked(coord)
	return nil
}

func (p *Poller) setCoordinateLocked(coord airquality.Coordinate) {
	p.coord = coord
	if p.running {
		if p.genCancel != nil {
			p.genCancel()
		}
		p.nextGenerationLocked(p.runCtx)
	} else {
		p.generation++
	}

	p.logger.Debug().
		Str("coordinate", coord.String()).
		Uint64("generation", p.generation).
		Msg("poller coordinate changed")
}

// RefreshNow starts an out-of-band fetch for the current coordinate.
func (p *Poller) RefreshNow() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatchLocked()
}

// Pick handles a coordinate chosen on the map: it retargets the poller and
// fetches immediately. A stopped poller keeps its previous target.
func (p *Poller) Pick(coord airquality.Coordinate) error {
	if err := coord.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrNotRunning
	}
	p.setCoordinateLocked(coord)
	return p.dispatchLocked()
}

// Coordinate returns the current target.
func (p *Poller) Coordinate() airquality.Coordinate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coord
}

// Status returns the poller status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:    p.running,
		Coordinate: p.coord,
		Interval:   p.interval,
		Generation: p.generation,
		Stats:      p.stats,
	}
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, done chan struct{}, fetches *sync.WaitGroup) {
	defer close(done)

	tick := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		// Only the run that owns done may dispatch; a stopped run skips.
		if p.done != done {
			return
		}
		if err := p.dispatchLocked(); err != nil {
			p.logger.Debug().Err(err).Msg("poll tick skipped")
		}
	}

	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.done == done {
				p.running = false
				if p.genCancel != nil {
					p.genCancel()
				}
			}
			p.mu.Unlock()
			fetches.Wait()
			return
		case <-ticker.C:
			tick()
		}
	}
}

// dispatchLocked starts one fetch in its own goroutine. Fetches may overlap.
func (p *Poller) dispatchLocked() error {
	if !p.running {
		return ErrNotRunning
	}

	t := token{
		generation: p.generation,
		seq:        p.seq.Add(1),
		coord:      p.coord,
	}
	ctx := p.genCtx
	p.stats.Fetches++

	fetches := p.fetches
	fetches.Add(1)
	go func() {
		defer fetches.Done()
		p.fetch(ctx, t)
	}()
	return nil
}

func (p *Poller) fetch(ctx context.Context, t token) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "airquality.fetch",
		trace.WithAttributes(
			attribute.Int64("poller.generation", int64(t.generation)),
			attribute.Int64("poller.seq", int64(t.seq)),
			attribute.String("airquality.coordinate", t.coord.String()),
		),
	)
	defer span.End()

	start := time.Now()
	reading, err := p.fetcher.FetchOnce(ctx, t.coord)
	p.metrics.RecordFetch(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, airquality.ErrorKind(err))
	}

	if p.complete(t, reading, err) && p.sink != nil {
		p.publish(ctx, reading)
	}
}

// complete renders a fetch result if it is still current. It reports whether
// a successful reading was rendered.
func (p *Poller) complete(t token, reading *airquality.Reading, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.logger.With().
		Uint64("generation", t.generation).
		Uint64("seq", t.seq).
		Str("coordinate", t.coord.String()).
		Logger()

	switch {
	case !p.running:
		p.discardLocked(log, "stopped")
		return false
	case t.generation != p.generation:
		p.discardLocked(log, "stale_coordinate")
		return false
	case t.seq <= p.lastRendered:
		p.discardLocked(log, "out_of_order")
		return false
	}
	p.lastRendered = t.seq

	now := time.Now()
	if err != nil {
		kind := airquality.ErrorKind(err)
		p.stats.Failures++
		p.stats.LastFailureAt = &now
		p.stats.LastError = err.Error()
		p.stats.LastErrorKind = kind

		log.Warn().Err(err).Str("error_kind", kind).Msg("air quality fetch failed")
	} else {
		p.stats.Successes++
		p.stats.LastSuccessAt = &now
	}

	state := p.presenter.Update(func(prev render.State) render.State {
		return render.Render(prev, t.coord, reading, err, p.policy)
	})

	if err == nil {
		log.Info().
			Str("station", reading.StationName).
			Str("aqi", state.Text(render.FieldAQI)).
			Bool("marker", state.Marker != nil).
			Msg("air quality rendered")
	}
	return err == nil
}

func (p *Poller) discardLocked(log zerolog.Logger, reason string) {
	p.stats.Discarded++
	p.metrics.RecordDiscard(reason)
	log.Debug().Str("reason", reason).Msg("air quality response discarded")
}

func (p *Poller) publish(ctx context.Context, reading *airquality.Reading) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.publishTimeout)
	defer cancel()

	if err := p.sink.Publish(ctx, reading); err != nil {
		p.logger.Warn().Err(err).Msg("failed to publish air quality reading")
	}
}

// nextGenerationLocked starts a new generation whose fetches are cancelled
// when the generation is replaced.
func (p *Poller) nextGenerationLocked(parent context.Context) {
	p.generation++
	p.genCtx, p.genCancel = context.WithCancel(parent)
}

// String implements fmt.Stringer for log output.
func (s Status) String() string {
	return fmt.Sprintf("running=%t coordinate=%s interval=%s fetches=%d", s.Running, s.Coordinate, s.Interval, s.Fetches)
}
