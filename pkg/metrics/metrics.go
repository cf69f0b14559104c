// Package metrics holds the Prometheus instrumentation of a report run.
//
// Every run owns its own registry, so nothing is shared between client
// instances or tests. A finished run can push the registry to a Prometheus
// Pushgateway, which is the usual way to observe short-lived batch jobs.
//
// Metrics:
//   - datacite_requests_total{endpoint, status} (Counter): API requests by endpoint and HTTP status
//   - datacite_request_duration_seconds{endpoint} (Histogram): API request duration
//   - datacite_errors_total{class} (Counter): API errors by class (client, server, network, response)
//   - doi_report_organizations (Gauge): consortium members in the last report
//   - doi_report_batches (Gauge): facet batches issued in the last report
//   - doi_report_last_success_timestamp_seconds (Gauge): unix time of the last successful run
//
// Example Prometheus Queries:
//
//	# Requests per run by endpoint
//	sum by (endpoint) (datacite_requests_total)
//
//	# Stale report alert (no success in 40 days)
//	time() - doi_report_last_success_timestamp_seconds > 40 * 86400
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label for report runs.
const JobName = "consortium_doi_report"

// Metrics groups the collectors of one run.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec

	Organizations prometheus.Gauge
	Batches       prometheus.Gauge
	LastSuccess   prometheus.Gauge
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datacite_requests_total",
			Help: "Total DataCite API requests by endpoint and status",
		}, []string{"endpoint", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datacite_request_duration_seconds",
			Help:    "DataCite API request duration in seconds by endpoint",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"endpoint"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datacite_errors_total",
			Help: "Total DataCite API errors by class",
		}, []string{"class"}),
		Organizations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "doi_report_organizations",
			Help: "Number of consortium organizations in the last report",
		}),
		Batches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "doi_report_batches",
			Help: "Number of facet batches issued in the last report",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "doi_report_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful report run",
		}),
	}
}

// ObserveRun records the shape of a finished report.
func (m *Metrics) ObserveRun(organizations, batches int, finished time.Time) {
	m.Organizations.Set(float64(organizations))
	m.Batches.Set(float64(batches))
	m.LastSuccess.Set(float64(finished.Unix()))
}

// Push sends the registry to a Pushgateway, grouped by consortium.
func (m *Metrics) Push(ctx context.Context, gatewayURL, consortiumID string) error {
	if gatewayURL == "" {
		return fmt.Errorf("pushgateway url is required")
	}

	pusher := push.New(gatewayURL, JobName).
		Gatherer(m.Registry).
		Grouping("consortium", consortiumID)

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
