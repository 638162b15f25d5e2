package supervisor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for browser task activity. A nil
// *Metrics records nothing.
type Metrics struct {
	tasksStarted     prometheus.Counter
	tasksActive      prometheus.Gauge
	outcomes         *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	progressTimeouts prometheus.Counter
	handoffs         *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns metrics registered with the default registry. The
// collectors are created once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics creates the collectors and registers them with reg. It
// panics on a registration error.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browseragent",
			Subsystem: "supervisor",
			Name:      "tasks_started_total",
			Help:      "Browser tasks started.",
		}),
		tasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "browseragent",
			Subsystem: "supervisor",
			Name:      "tasks_active",
			Help:      "Browser tasks currently awaited.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browseragent",
			Subsystem: "supervisor",
			Name:      "task_outcomes_total",
			Help:      "Finished browser tasks by outcome status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "browseragent",
			Subsystem: "supervisor",
			Name:      "task_duration_seconds",
			Help:      "Time from start to outcome of browser tasks.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		progressTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browseragent",
			Subsystem: "supervisor",
			Name:      "progress_timeouts_total",
			Help:      "Progress updates that did not finish within the progress timeout.",
		}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browseragent",
			Subsystem: "supervisor",
			Name:      "handoffs_total",
			Help:      "Manual control requests by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.tasksStarted, m.tasksActive, m.outcomes, m.duration, m.progressTimeouts, m.handoffs)
	return m
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.tasksStarted.Inc()
}

func (m *Metrics) awaitStarted() {
	if m == nil {
		return
	}
	m.tasksActive.Inc()
}

func (m *Metrics) observeOutcome(status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksActive.Dec()
	m.outcomes.WithLabelValues(string(status)).Inc()
	m.duration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) progressTimeout() {
	if m == nil {
		return
	}
	m.progressTimeouts.Inc()
}

func (m *Metrics) handoff(result string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(result).Inc()
}
