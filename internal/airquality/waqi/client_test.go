package waqi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityscope/cityscope/internal/airquality"
	"github.com/cityscope/cityscope/internal/airquality/waqi"
	"github.com/cityscope/cityscope/internal/provider/resilience"
	"github.com/cityscope/cityscope/internal/render"
	"github.com/cityscope/cityscope/internal/sink"
)

func feedBody() map[string]interface{} {
	return map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"aqi": 42,
			"city": map[string]interface{}{
				"name": "Amsterdam-Vondelpark",
				"geo":  []float64{52.36, 4.871},
			},
			"time": map[string]interface{}{
				"s": "2024-05-01 14:00:00",
			},
			"iaqi": map[string]interface{}{
				"co":   map[string]float64{"v": 4.5},
				"no2":  map[string]float64{"v": 17.2},
				"pm25": map[string]float64{"v": 42},
				"t":    map[string]float64{"v": 18},
			},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *waqi.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return waqi.NewClient(waqi.ClientConfig{
		Token:      "secret",
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})
}

func TestClient_FetchOnce(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/feed/geo:52.3676;4.9041/", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(feedBody())
	})

	reading, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	require.NoError(t, err)

	require.True(t, reading.HasAQI())
	assert.Equal(t, 42.0, *reading.AQI)
	assert.Equal(t, "Amsterdam-Vondelpark", reading.StationName)
	assert.Equal(t, "2024-05-01 14:00:00", reading.MeasuredAt)
	require.NotNil(t, reading.StationLocation)
	assert.Equal(t, airquality.Coordinate{Lat: 52.36, Lon: 4.871}, *reading.StationLocation)
	assert.Equal(t, airquality.DefaultCoordinate, reading.Coordinate)
	assert.False(t, reading.FetchedAt.IsZero())

	assert.Len(t, reading.Samples, 3, "unrecognized codes are ignored")
	co, ok := reading.Sample(airquality.PollutantCO)
	assert.True(t, ok)
	assert.Equal(t, 4.5, co)
	_, ok = reading.Sample(airquality.PollutantSO2)
	assert.False(t, ok)
}

func TestClient_FetchOnce_NoDataAQI(t *testing.T) {
	tests := []struct {
		name string
		aqi  string
	}{
		{"dash sentinel", `"-"`},
		{"null", `null`},
		{"nan string", `"NaN"`},
		{"inf string", `"Inf"`},
		{"negative infinity string", `"-infinity"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"ok","data":{"aqi":` + tt.aqi +
					`,"city":{"name":"Idle"},"time":{"s":""},"iaqi":{"co":{"v":"NaN"},"no2":{"v":"+Inf"},"o3":{"v":4}}}}`))
			})

			reading, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
			require.NoError(t, err)
			assert.False(t, reading.HasAQI())
			assert.Equal(t, "Idle", reading.StationName)
			assert.Nil(t, reading.StationLocation)

			_, ok := reading.Sample(airquality.PollutantCO)
			assert.False(t, ok, "non-finite samples are absent")
			_, ok = reading.Sample(airquality.PollutantNO2)
			assert.False(t, ok)
			o3, ok := reading.Sample(airquality.PollutantO3)
			assert.True(t, ok)
			assert.Equal(t, 4.0, o3)

			state := render.Render(render.Initial(), airquality.DefaultCoordinate, reading, nil, render.Policy{})
			assert.Equal(t, "AQI: Data not available", state.Text(render.FieldAQI))
			assert.Equal(t, "CO: N/A", state.Text(render.PollutantField(airquality.PollutantCO)))
			assert.Nil(t, state.Marker)

			_, _, err = sink.Encode(reading)
			assert.NoError(t, err, "reading must stay publishable")
		})
	}
}

func TestClient_FetchOnce_NumericStringAQI(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","data":{"aqi":"87","iaqi":{"o3":{"v":"12.5"}}}}`))
	})

	reading, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	require.NoError(t, err)
	require.True(t, reading.HasAQI())
	assert.Equal(t, 87.0, *reading.AQI)
	o3, ok := reading.Sample(airquality.PollutantO3)
	assert.True(t, ok)
	assert.Equal(t, 12.5, o3)
}

func TestClient_FetchOnce_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"malformed body", http.StatusOK, `{"status":`, airquality.ErrParse},
		{"html error page", http.StatusBadGateway, `<html>bad gateway</html>`, airquality.ErrParse},
		{"status missing", http.StatusOK, `{"data":{"aqi":10}}`, airquality.ErrUpstreamStatus},
		{"status error", http.StatusOK, `{"status":"error","data":"Invalid key"}`, airquality.ErrUpstreamStatus},
		{"data missing", http.StatusOK, `{"status":"ok"}`, airquality.ErrMissingStationData},
		{"data null", http.StatusOK, `{"status":"ok","data":null}`, airquality.ErrMissingStationData},
		{"data wrong shape", http.StatusOK, `{"status":"ok","data":"unknown station"}`, airquality.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			reading, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
			assert.Nil(t, reading)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_FetchOnce_HTTPErrorWithValidBody(t *testing.T) {
	// A non-2xx status with a well-formed ok body is still a reading.
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"status":"ok","data":{"aqi":12}}`))
	})

	reading, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	require.NoError(t, err)
	assert.Equal(t, 12.0, *reading.AQI)
}

func TestClient_FetchOnce_UpstreamMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","data":"Invalid key"}`))
	})

	_, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid key")
	assert.Equal(t, airquality.KindUpstreamStatus, airquality.ErrorKind(err))
}

func TestClient_FetchOnce_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := waqi.NewClient(waqi.ClientConfig{
		Token:   "secret",
		BaseURL: baseURL,
	})

	_, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	assert.ErrorIs(t, err, airquality.ErrNetwork)
}

func TestClient_DefaultClientSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := waqi.NewClient(waqi.ClientConfig{
		Token:    "secret",
		BaseURL:  server.URL,
		Registry: registry,
	})

	_, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	assert.ErrorIs(t, err, airquality.ErrParse)
	assert.Equal(t, int32(1), attempts.Load())

	health := registry.GetHealth(waqi.ProviderName)
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
}

func TestClient_FeedURL(t *testing.T) {
	client := waqi.NewClient(waqi.ClientConfig{Token: "a b", BaseURL: "https://example.test/"})
	url := client.FeedURL(airquality.Coordinate{Lat: -33.8688, Lon: 151.2093})
	assert.Equal(t, "https://example.test/feed/geo:-33.8688;151.2093/?token=a+b", url)
	assert.Equal(t, waqi.ProviderName, client.Name())
}

func TestClient_UpstreamErrorMarksProviderDegraded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","data":"Invalid key"}`))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := waqi.NewClient(waqi.ClientConfig{
		Token:    "bad",
		BaseURL:  server.URL,
		Registry: registry,
	})

	_, err := client.FetchOnce(context.Background(), airquality.DefaultCoordinate)
	require.ErrorIs(t, err, airquality.ErrUpstreamStatus)

	health := registry.GetHealth(waqi.ProviderName)
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt, "the HTTP exchange itself succeeded")
	require.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "Invalid key")
	assert.Equal(t, resilience.StatusDegraded, health.Status())
}
