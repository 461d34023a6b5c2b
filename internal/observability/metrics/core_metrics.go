package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config labels every core metric with service and environment.
type Config struct {
	ServiceName string
	Environment string
}

// CoreMetrics counts the settlement core's mutating operations.
type CoreMetrics struct {
	transitions      *prometheus.CounterVec
	invoicesCreated  *prometheus.CounterVec
	paymentsApplied  *prometheus.CounterVec
	earningsComputed *prometheus.CounterVec
	earningsPaid     *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	overdueMarked    prometheus.Counter
}

var (
	coreMetricsOnce sync.Once
	coreMetrics     *CoreMetrics
)

// Core returns the process-wide core metrics, registering them on first use.
func Core() *CoreMetrics {
	return CoreWithConfig(Config{})
}

// CoreWithConfig returns the process-wide core metrics with explicit labels.
func CoreWithConfig(cfg Config) *CoreMetrics {
	coreMetricsOnce.Do(func() {
		coreMetrics = newCoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return coreMetrics
}

// ResetCoreMetricsForTest clears the singleton between test registries.
func ResetCoreMetricsForTest() {
	coreMetricsOnce = sync.Once{}
	coreMetrics = nil
}

func newCoreMetrics(registerer prometheus.Registerer, cfg Config) *CoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "lumen-core"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lumen_campaign_transitions_total",
			Help:        "Campaign status transitions attempted, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // applied | noop | rejected
	)

	invoicesCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lumen_invoices_created_total",
			Help:        "Invoices created from aggregated spend, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // created | duplicate | rejected
	)

	paymentsApplied := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lumen_payments_applied_total",
			Help:        "Payments applied to invoices, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // partial | settled | rejected
	)

	earningsComputed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lumen_earnings_computed_total",
			Help:        "Partner earnings computed per settlement period, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // computed | duplicate | rejected
	)

	earningsPaid := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lumen_earnings_paid_total",
			Help:        "Partner earnings marked paid, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "lumen_sweep_duration_seconds",
			Help:        "Duration of scheduler sweeps over invoices and partners.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"sweep"}, // overdue | settlement
	)

	overdueMarked := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "lumen_invoices_overdue_total",
			Help:        "Invoices moved to OVERDUE by the due-date sweep.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		transitions,
		invoicesCreated,
		paymentsApplied,
		earningsComputed,
		earningsPaid,
		sweepDuration,
		overdueMarked,
	)

	return &CoreMetrics{
		transitions:      transitions,
		invoicesCreated:  invoicesCreated,
		paymentsApplied:  paymentsApplied,
		earningsComputed: earningsComputed,
		earningsPaid:     earningsPaid,
		sweepDuration:    sweepDuration,
		overdueMarked:    overdueMarked,
	}
}

func (m *CoreMetrics) IncTransition(result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) IncInvoiceCreated(result string) {
	if m == nil {
		return
	}
	m.invoicesCreated.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) IncPaymentApplied(result string) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) IncEarningComputed(result string) {
	if m == nil {
		return
	}
	m.earningsComputed.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) IncEarningPaid(result string) {
	if m == nil {
		return
	}
	m.earningsPaid.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) ObserveSweep(sweep string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

func (m *CoreMetrics) AddOverdueMarked(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueMarked.Add(float64(count))
}
