package poller_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/poller"
	"github.com/cityscope/cityscope/internal/render"
)

var (
	amsterdam = airquality.Coordinate{Lat: 52.3676, Lon: 4.9041}
	rotterdam = airquality.Coordinate{Lat: 51.9244, Lon: 4.4777}
)

// fakeFetcher answers fetches through a handler keyed on call number (1-based).
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []airquality.Coordinate
	handler func(ctx context.Context, call int, coord airquality.Coordinate) (*airquality.Reading, error)
}

func (f *fakeFetcher) FetchOnce(ctx context.Context, coord airquality.Coordinate) (*airquality.Reading, error) {
	f.mu.Lock()
	f.calls = append(f.calls, coord)
	call := len(f.calls)
	f.mu.Unlock()

	if f.handler == nil {
		return reading(coord, 42, "station"), nil
	}
	return f.handler(ctx, call, coord)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSink struct {
	mu       sync.Mutex
	readings []*airquality.Reading
	err      error
}

func (s *fakeSink) Publish(_ context.Context, r *airquality.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func reading(coord airquality.Coordinate, value float64, station string) *airquality.Reading {
	r := airquality.NewReading(coord)
	r.AQI = &value
	r.StationName = station
	return r
}

type harness struct {
	poller  *poller.Poller
	surface *render.MemorySurface
	fetcher *fakeFetcher
	sink    *fakeSink
}

func newHarness(t *testing.T, fetcher *fakeFetcher, policy render.Policy) *harness {
	t.Helper()

	surface := render.NewMemorySurface()
	sink := &fakeSink{}
	p := poller.New(poller.Config{
		Fetcher:        fetcher,
		Presenter:      render.NewPresenter(surface),
		Policy:         policy,
		Sink:           sink,
		Logger:         zerolog.New(io.Discard),
		RequestTimeout: time.Second,
	})
	t.Cleanup(p.Stop)

	return &harness{poller: p, surface: surface, fetcher: fetcher, sink: sink}
}

func (h *harness) aqiText() string {
	return h.surface.Snapshot().Texts[render.FieldAQI]
}

func (h *harness) stationText() string {
	return h.surface.Snapshot().Texts[render.FieldStation]
}

func TestPoller_StartFetchesImmediately(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))

	assert.Eventually(t, func() bool { return h.aqiText() == "AQI: 42" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.surface.MarkerCount())
	assert.Equal(t, 1, h.fetcher.callCount())
	assert.True(t, h.poller.Running())
}

func TestPoller_PollsEveryInterval(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, 10*time.Millisecond))

	assert.Eventually(t, func() bool { return h.fetcher.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return h.poller.Status().Successes >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.surface.MarkerCount(), "one marker no matter how many ticks")
}

func TestPoller_StartValidation(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})

	assert.ErrorIs(t, h.poller.Start(context.Background(), amsterdam, 0), poller.ErrInvalidInterval)
	assert.ErrorIs(t, h.poller.Start(context.Background(), amsterdam, -time.Second), poller.ErrInvalidInterval)
	assert.ErrorIs(t,
		h.poller.Start(context.Background(), airquality.Coordinate{Lat: 91}, time.Hour),
		airquality.ErrInvalidCoordinate)

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	assert.ErrorIs(t, h.poller.Start(context.Background(), amsterdam, time.Hour), poller.ErrAlreadyRunning)
}

func TestPoller_FailureRendersNotAvailable(t *testing.T) {
	fetcher := &fakeFetcher{
		handler: func(_ context.Context, call int, coord airquality.Coordinate) (*airquality.Reading, error) {
			if call == 1 {
				return reading(coord, 42, "station"), nil
			}
			return nil, airquality.ErrUpstreamStatus
		},
	}
	h := newHarness(t, fetcher, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	require.Eventually(t, func() bool { return h.aqiText() == "AQI: 42" }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.poller.RefreshNow())

	assert.Eventually(t, func() bool { return h.aqiText() == "AQI: N/A" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Station: N/A", h.stationText())
	assert.Equal(t, 0, h.surface.MarkerCount())

	status := h.poller.Status()
	assert.Equal(t, int64(1), status.Failures)
	assert.Equal(t, "upstream_status", status.LastErrorKind)
	assert.NotNil(t, status.LastFailureAt)
	assert.Eventually(t, func() bool { return h.sink.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.sink.count(), "failures are not published")
}

func TestPoller_FailureKeepsMarkerWhenConfigured(t *testing.T) {
	fetcher := &fakeFetcher{
		handler: func(_ context.Context, call int, coord airquality.Coordinate) (*airquality.Reading, error) {
			if call == 1 {
				return reading(coord, 120, "station"), nil
			}
			return nil, airquality.ErrNetwork
		},
	}
	h := newHarness(t, fetcher, render.Policy{KeepMarkerOnFailure: true})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	require.Eventually(t, func() bool { return h.surface.MarkerCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.poller.RefreshNow())
	require.Eventually(t, func() bool { return h.aqiText() == "AQI: N/A" }, time.Second, 5*time.Millisecond)

	markers := h.surface.Snapshot().Markers
	require.Len(t, markers, 1)
	assert.Equal(t, "orange", markers[0].Marker.Color)
}

func TestPoller_SetCoordinateDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{
		handler: func(_ context.Context, _ int, coord airquality.Coordinate) (*airquality.Reading, error) {
			if coord == amsterdam {
				// Ignores cancellation to simulate a response already on the wire.
				<-release
				return reading(coord, 250, "Amsterdam"), nil
			}
			return reading(coord, 30, "Rotterdam"), nil
		},
	}
	h := newHarness(t, fetcher, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.poller.Pick(rotterdam))
	require.Eventually(t, func() bool { return h.stationText() == "Station: Rotterdam" }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return h.poller.Status().Discarded == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Station: Rotterdam", h.stationText())
	assert.Equal(t, "AQI: 30", h.aqiText())
	markers := h.surface.Snapshot().Markers
	require.Len(t, markers, 1)
	assert.Equal(t, "green", markers[0].Marker.Color)
	assert.Equal(t, rotterdam, h.poller.Coordinate())
}

func TestPoller_SetCoordinateCancelsInFlightFetch(t *testing.T) {
	cancelled := make(chan struct{})
	fetcher := &fakeFetcher{
		handler: func(ctx context.Context, call int, coord airquality.Coordinate) (*airquality.Reading, error) {
			if call == 1 {
				<-ctx.Done()
				close(cancelled)
				return nil, airquality.ErrNetwork
			}
			return reading(coord, 30, "Rotterdam"), nil
		},
	}
	h := newHarness(t, fetcher, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.poller.SetCoordinate(rotterdam))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight fetch was not cancelled")
	}
	require.Eventually(t, func() bool { return h.poller.Status().Discarded == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "AQI: N/A", h.aqiText(), "cancelled fetch is not rendered as a failure")
	assert.Equal(t, int64(0), h.poller.Status().Failures)
}

func TestPoller_OlderResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{
		handler: func(_ context.Context, call int, coord airquality.Coordinate) (*airquality.Reading, error) {
			if call == 1 {
				<-release
				return reading(coord, 250, "first"), nil
			}
			return reading(coord, 80, "second"), nil
		},
	}
	h := newHarness(t, fetcher, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.poller.RefreshNow())
	require.Eventually(t, func() bool { return h.stationText() == "Station: second" }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return h.poller.Status().Discarded == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Station: second", h.stationText())
	assert.Equal(t, "AQI: 80", h.aqiText())
}

func TestPoller_StopHaltsPolling(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, 10*time.Millisecond))
	require.Eventually(t, func() bool { return h.fetcher.callCount() >= 2 }, time.Second, 5*time.Millisecond)

	h.poller.Stop()
	calls := h.fetcher.callCount()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, calls, h.fetcher.callCount())
	assert.False(t, h.poller.Running())
	assert.ErrorIs(t, h.poller.RefreshNow(), poller.ErrNotRunning)
	generation := h.poller.Status().Generation
	assert.ErrorIs(t, h.poller.Pick(rotterdam), poller.ErrNotRunning)
	assert.Equal(t, amsterdam, h.poller.Coordinate(), "a rejected pick keeps the old target")
	assert.Equal(t, generation, h.poller.Status().Generation)

	// Stopping twice is a no-op; restarting works.
	h.poller.Stop()
	require.NoError(t, h.poller.Start(context.Background(), rotterdam, time.Hour))
	assert.Eventually(t, func() bool { return h.fetcher.callCount() > calls }, time.Second, 5*time.Millisecond)
}

func TestPoller_StopDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{
		handler: func(_ context.Context, _ int, coord airquality.Coordinate) (*airquality.Reading, error) {
			<-release
			return reading(coord, 42, "late"), nil
		},
	}
	h := newHarness(t, fetcher, render.Policy{})

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	h.poller.Stop()

	assert.Equal(t, "Station: N/A", h.stationText())
	assert.Equal(t, int64(1), h.poller.Status().Discarded)
}

func TestPoller_RestartWhileStopping(t *testing.T) {
	fetcher := &fakeFetcher{
		handler: func(_ context.Context, _ int, coord airquality.Coordinate) (*airquality.Reading, error) {
			// Ignores ctx so the stopping loop lingers in its shutdown wait.
			time.Sleep(5 * time.Millisecond)
			return reading(coord, 42, "slow"), nil
		},
	}
	h := newHarness(t, fetcher, render.Policy{})

	for i := 0; i < 100; i++ {
		require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Millisecond))

		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			h.poller.Stop()
		}()

		// Restart as soon as Stop has released the running flag, racing the
		// old loop's shutdown.
		require.Eventually(t, func() bool {
			return h.poller.Start(context.Background(), rotterdam, time.Millisecond) == nil
		}, time.Second, 100*time.Microsecond)
		<-stopped // the old loop has fully exited

		require.True(t, h.poller.Running(), "iteration %d: restarted poller lost its run", i)
		require.NoError(t, h.poller.RefreshNow(), "iteration %d", i)

		h.poller.Stop()
		require.False(t, h.poller.Running())
	}
}

func TestPoller_ParentContextCancelStops(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, h.poller.Start(ctx, amsterdam, 10*time.Millisecond))
	cancel()

	assert.Eventually(t, func() bool { return !h.poller.Running() }, time.Second, 5*time.Millisecond)
}

func TestPoller_PublishesSuccessfulReadings(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})
	h.sink.err = errors.New("broker down")

	require.NoError(t, h.poller.Start(context.Background(), amsterdam, time.Hour))

	assert.Eventually(t, func() bool { return h.sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "AQI: 42", h.aqiText(), "publish errors do not affect rendering")
}

func TestPoller_SetCoordinateValidation(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, render.Policy{})

	err := h.poller.SetCoordinate(airquality.Coordinate{Lat: 10, Lon: 200})
	assert.ErrorIs(t, err, airquality.ErrInvalidCoordinate)
	assert.Equal(t, airquality.DefaultCoordinate, h.poller.Coordinate())

	require.NoError(t, h.poller.SetCoordinate(rotterdam))
	assert.Equal(t, rotterdam, h.poller.Coordinate())
	assert.False(t, h.poller.Running())
}
