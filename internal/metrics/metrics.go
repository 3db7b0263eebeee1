/**
 * Recovery Metrics
 *
 * Prometheus collectors fed by the recovery event bus and the error log.
 *
 * Author: SyncGuard Team
 * Created: 2026-10-13
 */

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/events"
)

// Metadata keys read from FAILURE_DETECTED events.
const (
	MetaFailureType = "failure_type"
	MetaSeverity    = "severity"
)

// Metrics holds the recovery collectors.
type Metrics struct {
	// RecoveryEvents counts bus events by type and action
	RecoveryEvents *prometheus.CounterVec

	// RecoveryDuration observes finished recoveries by action and outcome
	RecoveryDuration *prometheus.HistogramVec

	// Classifications counts detected failures by type and severity
	Classifications *prometheus.CounterVec

	// ErrorsLogged counts error log entries by type, severity and dedup
	ErrorsLogged *prometheus.CounterVec

	// BackupsCreated counts backups by type
	BackupsCreated *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers the collectors on reg under namespace. A nil registry
// gets a fresh one.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecoveryEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_events_total",
				Help:      "Total number of recovery events published",
			},
			[]string{"type", "action"},
		),
		RecoveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recovery_duration_seconds",
				Help:      "Recovery attempt duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action", "outcome"},
		),
		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_classified_total",
				Help:      "Total number of failures classified",
			},
			[]string{"failure_type", "severity"},
		),
		ErrorsLogged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_logged_total",
				Help:      "Total number of errors recorded in the error log",
			},
			[]string{"type", "severity", "deduplicated"},
		),
		BackupsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_created_total",
				Help:      "Total number of backups created",
			},
			[]string{"type"},
		),
		registry: reg,
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HandleEvent is an events.Handler.
func (m *Metrics) HandleEvent(event events.Event) {
	action := string(event.Action)
	if action == "" && event.Result != nil {
		action = string(event.Result.Action)
	}
	m.RecoveryEvents.WithLabelValues(string(event.Type), action).Inc()

	switch event.Type {
	case events.EventFailureDetected:
		m.Classifications.WithLabelValues(
			metaString(event.Metadata, MetaFailureType),
			metaString(event.Metadata, MetaSeverity),
		).Inc()
	case events.EventRecoveryCompleted, events.EventRecoveryFailed:
		if event.Result == nil {
			return
		}
		outcome := "failure"
		if event.Type == events.EventRecoveryCompleted {
			outcome = "success"
		}
		m.RecoveryDuration.WithLabelValues(action, outcome).Observe(event.Result.Duration.Seconds())
	case events.EventBackupCreated:
		m.BackupsCreated.WithLabelValues(metaString(event.Metadata, "type")).Inc()
	}
}

// Attach subscribes the metrics to bus. The returned func detaches them.
func (m *Metrics) Attach(bus *events.Bus) func() {
	return bus.Subscribe(m.HandleEvent)
}

// ObserveError implements errorlog.Observer.
func (m *Metrics) ObserveError(entry errorlog.ErrorContext, deduplicated bool) {
	m.ErrorsLogged.WithLabelValues(
		string(entry.Type),
		string(entry.Severity),
		strconv.FormatBool(deduplicated),
	).Inc()
}

func metaString(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server exposes /metrics over HTTP.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server on addr.
func NewServer(m *Metrics, addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
