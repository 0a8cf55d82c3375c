// Package metrics exposes the runtime observations to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

const (
	namespace = "scorm"

	resultSuccess = "success"
	resultFailure = "failure"
)

// Recorder implements scorm.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	resolves            *prometheus.CounterVec
	commits             *prometheus.CounterVec
	calls               *prometheus.CounterVec
	flushes             *prometheus.CounterVec
	flushedInteractions prometheus.Counter
	pendingInteractions prometheus.Gauge
	activeLaunches      prometheus.Gauge
	autosaves           *prometheus.CounterVec
	autosaved           prometheus.Counter
}

var _ scorm.Metrics = (*Recorder)(nil)

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		resolves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resolves_total",
			Help:      "Session resolutions, labeled by outcome",
		}, []string{"outcome"}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_commits_total",
			Help:      "Session commits, labeled by result",
		}, []string{"result"}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "SCORM API calls made by content, labeled by dialect, function and error code",
		}, []string{"dialect", "function", "error_code"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interactions",
			Name:      "flushes_total",
			Help:      "Interaction log flushes, labeled by result",
		}, []string{"result"}),
		flushedInteractions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interactions",
			Name:      "flushed_total",
			Help:      "Interactions written to storage",
		}),
		pendingInteractions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "interactions",
			Name:      "pending",
			Help:      "Interactions waiting to be written",
		}),
		activeLaunches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_launches",
			Help:      "Launches served by this process",
		}),
		autosaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosave_runs_total",
			Help:      "Autosave runs, labeled by result",
		}, []string{"result"}),
		autosaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaved_sessions_total",
			Help:      "Sessions saved by autosave",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

func (r *Recorder) ObserveResolve(outcome string) {
	r.resolves.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveCommit(err error) {
	r.commits.WithLabelValues(result(err)).Inc()
}

func (r *Recorder) ObserveCall(dialect scorm.Version, function string, errorCode int) {
	r.calls.WithLabelValues(string(dialect), function, strconv.Itoa(errorCode)).Inc()
}

func (r *Recorder) ObserveInteractionFlush(count int, err error) {
	r.flushes.WithLabelValues(result(err)).Inc()
	if err == nil {
		r.flushedInteractions.Add(float64(count))
	}
}

func (r *Recorder) SetPendingInteractions(n int) {
	r.pendingInteractions.Set(float64(n))
}

func (r *Recorder) SetActiveLaunches(n int) {
	r.activeLaunches.Set(float64(n))
}

// ObserveAutosave records one autosave run.
func (r *Recorder) ObserveAutosave(saved int, err error) {
	r.autosaves.WithLabelValues(result(err)).Inc()
	r.autosaved.Add(float64(saved))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
