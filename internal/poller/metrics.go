package poller

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cityscope/cityscope/internal/airquality"
)

const instrumentationName = "github.com/cityscope/cityscope/internal/poller"

// Metrics holds the OpenTelemetry instruments for the poll loop.
type Metrics struct {
	fetchDuration metric.Float64Histogram
	fetchTotal    metric.Int64Counter
	discarded     metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with initialized instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	fetchDuration, err := meter.Float64Histogram(
		"airquality.fetch.duration",
		metric.WithDescription("Duration of air quality fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fetchTotal, err := meter.Int64Counter(
		"airquality.fetch.total",
		metric.WithDescription("Total number of air quality fetches by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	discarded, err := meter.Int64Counter(
		"airquality.fetch.discarded",
		metric.WithDescription("Fetch results dropped because a newer result or coordinate superseded them"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		fetchDuration: fetchDuration,
		fetchTotal:    fetchTotal,
		discarded:     discarded,
	}, nil
}

// RecordFetch records one completed fetch. Safe on a nil receiver.
func (m *Metrics) RecordFetch(d time.Duration, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = airquality.ErrorKind(err)
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	ctx := context.Background()
	m.fetchDuration.Record(ctx, d.Seconds(), attrs)
	m.fetchTotal.Add(ctx, 1, attrs)
}

// RecordDiscard records a dropped fetch result. Safe on a nil receiver.
func (m *Metrics) RecordDiscard(reason string) {
	if m == nil {
		return
	}
	m.discarded.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
