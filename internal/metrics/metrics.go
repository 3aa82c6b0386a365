// Package metrics — Prometheus-метрики жизненного цикла сессий и sweep.
// Все методы безопасны для nil-получателя: без метрик сервис работает так же.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sessiond"

// Причины удаления сессии (метка reason).
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
)

type Metrics struct {
	active        prometheus.Gauge
	created       prometheus.Counter
	removed       *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepErrors   prometheus.Counter
}

// New регистрирует коллекторы в reg (nil — без регистрации, удобно для тестов).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently held by the store.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created by login.",
		}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_removed_total",
			Help:      "Sessions removed, by reason.",
		}, []string{"reason"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of idle-session sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweeps that failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.active, m.created, m.removed, m.sweepDuration, m.sweepErrors)
	}
	return m
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
	m.active.Inc()
}

func (m *Metrics) SessionsRemoved(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removed.WithLabelValues(reason).Add(float64(n))
	m.active.Sub(float64(n))
}

// SetActive выставляет точное значение (после старта с непустым хранилищем или после sweep).
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *Metrics) ObserveSweep(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
	if err != nil {
		m.sweepErrors.Inc()
	}
}
