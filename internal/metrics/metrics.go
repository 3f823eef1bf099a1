package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's collectors. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	attemptsStarted  prometheus.Counter
	answersSaved     *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	submitDuration   prometheus.Histogram
	activeAttempts   prometheus.Gauge
	httpRequestTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		attemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_attempts_started_total",
			Help: "Attempts created for a (test, student) pair",
		}),
		answersSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_answers_saved_total",
			Help: "Answer upserts by outcome",
		}, []string{"outcome"}), // applied|stale|rejected
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Submit requests by outcome",
		}, []string{"outcome"}), // submitted|duplicate|error
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exam_submit_duration_seconds",
			Help:    "Time spent grading and finalizing an attempt",
			Buckets: prometheus.DefBuckets,
		}),
		activeAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exam_attempts_in_progress",
			Help: "Attempts started by this process and not yet submitted",
		}),
		httpRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_http_requests_total",
			Help: "HTTP requests by route and status class",
		}, []string{"route", "code"}),
	}
	m.reg.MustRegister(
		m.attemptsStarted, m.answersSaved, m.submissions,
		m.submitDuration, m.activeAttempts, m.httpRequestTotal,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.attemptsStarted.Inc()
	m.activeAttempts.Inc()
}

func (m *Metrics) AnswerSaved(outcome string) {
	if m == nil {
		return
	}
	m.answersSaved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Submitted(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if outcome == "submitted" {
		m.submitDuration.Observe(took.Seconds())
		m.activeAttempts.Dec()
	}
}

func (m *Metrics) Request(route string, status int) {
	if m == nil {
		return
	}
	code := "2xx"
	switch {
	case status >= 500:
		code = "5xx"
	case status >= 400:
		code = "4xx"
	case status >= 300:
		code = "3xx"
	}
	m.httpRequestTotal.WithLabelValues(route, code).Inc()
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
