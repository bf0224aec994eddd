package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
	"github.com/drblury/protobroker/internal/runtime/serviceconf"
)

// Attempt outcomes used as the "outcome" label.
const (
	OutcomeReady   = "ready"
	OutcomeCrashed = "crashed"
	OutcomeTimeout = "timeout"
	OutcomeLaunch  = "launch_error"
	OutcomeOther   = "error"
)

func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeReady
	case errors.Is(err, errspkg.ErrProcessCrashed):
		return OutcomeCrashed
	case errors.Is(err, errspkg.ErrReadinessTimeout):
		return OutcomeTimeout
	case errors.Is(err, errspkg.ErrLaunchFailed):
		return OutcomeLaunch
	default:
		return OutcomeOther
	}
}

// Metrics tracks broker session statistics.
type Metrics struct {
	mu sync.RWMutex

	services map[serviceconf.Kind]*ServiceMetrics
	sessions SessionMetrics

	// Prometheus collectors
	attemptsTotal    *prometheus.CounterVec
	attemptSeconds   *prometheus.HistogramVec
	exhaustedTotal   *prometheus.CounterVec
	topicsTotal      *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	startupSeconds   prometheus.Histogram
	sessionStartedAt prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// ServiceMetrics holds metrics for one service kind.
type ServiceMetrics struct {
	Attempts      uint64            `json:"attempts"`
	Ready         uint64            `json:"ready"`
	Failures      map[string]uint64 `json:"failures,omitempty"`
	Exhausted     uint64            `json:"exhausted"`
	LastPort      int               `json:"last_port,omitempty"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

// SessionMetrics holds session-level counters.
type SessionMetrics struct {
	Started       uint64    `json:"started"`
	Failed        uint64    `json:"failed"`
	Stopped       uint64    `json:"stopped"`
	Active        bool      `json:"active"`
	TopicsCreated uint64    `json:"topics_created"`
	TopicsFailed  uint64    `json:"topics_failed"`
	LastStartedAt time.Time `json:"last_started_at,omitempty"`
}

// MetricsSnapshot provides a point-in-time view of broker metrics.
type MetricsSnapshot struct {
	Services    map[serviceconf.Kind]*ServiceMetrics `json:"services"`
	Sessions    SessionMetrics                       `json:"sessions"`
	CollectedAt time.Time                            `json:"collected_at"`
}

// newCounterVec creates a new counter vec with standard protobroker namespace.
func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protobroker",
			Subsystem: "broker",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// newHistogramVec creates a new histogram vec with standard protobroker namespace.
func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "protobroker",
			Subsystem: "broker",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

var durationBuckets = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}

// NewMetrics creates a new broker metrics collector.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		services:       make(map[serviceconf.Kind]*ServiceMetrics),
		registerer:     registerer,
		attemptsTotal:  newCounterVec("attempts_total", "Total number of service launch attempts", []string{"service", "outcome"}),
		attemptSeconds: newHistogramVec("attempt_duration_seconds", "Time from spawn until a launch attempt succeeded or failed", durationBuckets, []string{"service"}),
		exhaustedTotal: newCounterVec("retries_exhausted_total", "Total number of services that ran out of launch attempts", []string{"service"}),
		topicsTotal:    newCounterVec("topics_total", "Total number of topic creations", []string{"outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "protobroker",
			Subsystem: "broker",
			Name:      "sessions_active",
			Help:      "Number of broker sessions currently started",
		}),
		startupSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "protobroker",
			Subsystem: "broker",
			Name:      "startup_duration_seconds",
			Help:      "Time for a full session start including topic creation",
			Buckets:   durationBuckets,
		}),
		sessionStartedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "protobroker",
			Subsystem: "broker",
			Name:      "session_started_timestamp_seconds",
			Help:      "Unix time the current session became ready",
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.attemptsTotal,
		m.attemptSeconds,
		m.exhaustedTotal,
		m.topicsTotal,
		m.sessionsActive,
		m.startupSeconds,
		m.sessionStartedAt,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Check if it's already registered (not an error)
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordAttempt records the outcome of one launch attempt.
func (m *Metrics) RecordAttempt(service serviceconf.Kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sm := m.getOrCreateServiceMetrics(service)
	sm.Attempts++
	if outcome == OutcomeReady {
		sm.Ready++
	} else {
		if sm.Failures == nil {
			sm.Failures = make(map[string]uint64)
		}
		sm.Failures[outcome]++
	}
	sm.LastUpdatedAt = time.Now()

	m.attemptsTotal.WithLabelValues(string(service), outcome).Inc()
	m.attemptSeconds.WithLabelValues(string(service)).Observe(duration.Seconds())
}

// RecordReadyPort remembers the port a service finally came up on.
func (m *Metrics) RecordReadyPort(service serviceconf.Kind, port int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateServiceMetrics(service).LastPort = port
}

// RecordExhausted records a service that used its whole retry budget.
func (m *Metrics) RecordExhausted(service serviceconf.Kind) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sm := m.getOrCreateServiceMetrics(service)
	sm.Exhausted++
	sm.LastUpdatedAt = time.Now()
	m.exhaustedTotal.WithLabelValues(string(service)).Inc()
}

// RecordTopics records the result of one provisioning call.
func (m *Metrics) RecordTopics(created, failed int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions.TopicsCreated += uint64(created)
	m.sessions.TopicsFailed += uint64(failed)
	m.topicsTotal.WithLabelValues("created").Add(float64(created))
	m.topicsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordSessionStarted records a session that became ready.
func (m *Metrics) RecordSessionStarted(took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.sessions.Started++
	m.sessions.Active = true
	m.sessions.LastStartedAt = now
	m.sessionsActive.Set(1)
	m.startupSeconds.Observe(took.Seconds())
	m.sessionStartedAt.Set(float64(now.Unix()))
}

// RecordSessionFailed records a start that did not complete.
func (m *Metrics) RecordSessionFailed() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions.Failed++
}

// RecordSessionStopped records a session teardown.
func (m *Metrics) RecordSessionStopped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions.Stopped++
	m.sessions.Active = false
	m.sessionsActive.Set(0)
	m.sessionStartedAt.Set(0)
}

// GetSnapshot returns a point-in-time snapshot of all broker metrics.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		Services:    make(map[serviceconf.Kind]*ServiceMetrics, len(m.services)),
		Sessions:    m.sessions,
		CollectedAt: time.Now(),
	}
	for kind := range m.services {
		snapshot.Services[kind] = m.copyServiceMetrics(kind)
	}
	return snapshot
}

// GetServiceMetrics returns metrics for a specific service kind.
func (m *Metrics) GetServiceMetrics(service serviceconf.Kind) *ServiceMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.copyServiceMetrics(service)
}

func (m *Metrics) copyServiceMetrics(service serviceconf.Kind) *ServiceMetrics {
	sm, ok := m.services[service]
	if !ok {
		return nil
	}
	cp := *sm
	if sm.Failures != nil {
		cp.Failures = make(map[string]uint64, len(sm.Failures))
		for k, v := range sm.Failures {
			cp.Failures[k] = v
		}
	}
	return &cp
}

func (m *Metrics) getOrCreateServiceMetrics(service serviceconf.Kind) *ServiceMetrics {
	if sm, ok := m.services[service]; ok {
		return sm
	}
	sm := &ServiceMetrics{}
	m.services[service] = sm
	return sm
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services = make(map[serviceconf.Kind]*ServiceMetrics)
	m.sessions = SessionMetrics{}
	m.attemptsTotal.Reset()
	m.attemptSeconds.Reset()
	m.exhaustedTotal.Reset()
	m.topicsTotal.Reset()
	m.sessionsActive.Set(0)
	m.sessionStartedAt.Set(0)
}
