// Package metrics exposes the Prometheus collectors of the API and the
// background workers on a private registry.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nluhub"

// Metrics holds every collector. A nil *Metrics records nothing, so
// callers that run without metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	nlpRequests  *prometheus.CounterVec
	nlpDuration  *prometheus.HistogramVec
	cloneJobs    *prometheus.CounterVec
	cloneSeconds prometheus.Histogram
	jobRuns      *prometheus.CounterVec
	prunedLogs   prometheus.Counter
}

func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken for HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		nlpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nlp_requests_total",
			Help:      "Requests sent to the NLP service by operation and outcome",
		}, []string{"operation", "outcome"}),
		nlpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nlp_request_duration_seconds",
			Help:      "Time taken by NLP service requests",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation"}),
		cloneJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clone_jobs_total",
			Help:      "Finished version clone jobs by status",
		}, []string{"status"}),
		cloneSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clone_job_duration_seconds",
			Help:      "Time taken to clone a version",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Periodic job runs by job and status",
		}, []string{"job", "status"}),
		prunedLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nlp_logs_pruned_total",
			Help:      "NLP logs removed by the retention job",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.nlpRequests, m.nlpDuration,
		m.cloneJobs, m.cloneSeconds,
		m.jobRuns, m.prunedLogs,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveNLP matches the NLP client's OnRequest hook.
func (m *Metrics) ObserveNLP(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.nlpRequests.WithLabelValues(operation, outcome).Inc()
	m.nlpDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCloneJob(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cloneJobs.WithLabelValues(status).Inc()
	m.cloneSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJobRun(job string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}

func (m *Metrics) AddPrunedLogs(n int) {
	if m == nil {
		return
	}
	m.prunedLogs.Add(float64(n))
}
