package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbtracker/internal/model"
)

const namespace = "arbtracker"

// Recorder exposes tracker activity as Prometheus collectors on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	calcTotal    *prometheus.CounterVec
	rate         *prometheus.GaugeVec
	spread       prometheus.Gauge
	profitZAR    prometheus.Gauge
	profitPct    prometheus.Gauge
	historySize  prometheus.Gauge
	lastRefresh  prometheus.Gauge
}

// NewRecorder creates a Recorder with Go runtime and process collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_fetch_total",
			Help:      "Rate fetches by source and result",
		}, []string{"source", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_fetch_duration_seconds",
			Help:      "Time to fetch a rate",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		calcTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Profit calculations by trigger and result",
		}, []string{"trigger", "result"}),
		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_zar",
			Help:      "Last fetched rate in ZAR per USD(C)",
		}, []string{"source"}),
		spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread_percent",
			Help:      "Last spread between the VALR bid and the market rate",
		}),
		profitZAR: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profit_zar",
			Help:      "Last estimated profit in ZAR",
		}),
		profitPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profit_percent",
			Help:      "Last estimated profit as a percentage of capital",
		}),
		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Reports held in the history buffer",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_report_timestamp_seconds",
			Help:      "Unix time of the newest report",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.fetchTotal,
		r.fetchLatency,
		r.calcTotal,
		r.rate,
		r.spread,
		r.profitZAR,
		r.profitPct,
		r.historySize,
		r.lastRefresh,
	)
	return r
}

// RecordFetch counts one rate fetch.
func (r *Recorder) RecordFetch(source string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetchTotal.WithLabelValues(source, result).Inc()
	r.fetchLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// RecordCalculation counts one calculation. report is only read when err is nil.
func (r *Recorder) RecordCalculation(trigger string, report model.ProfitReport, err error) {
	if err != nil {
		r.calcTotal.WithLabelValues(trigger, "error").Inc()
		return
	}
	r.calcTotal.WithLabelValues(trigger, "ok").Inc()
	r.rate.WithLabelValues("valr").Set(report.ValrRate)
	r.rate.WithLabelValues("market").Set(report.MarketRate)
	r.spread.Set(report.Spread)
	r.profitZAR.Set(report.ProfitZAR)
	r.profitPct.Set(report.ProfitPercent)
	r.lastRefresh.Set(float64(report.CapturedAt.Unix()))
}

// SetHistorySize records the current history length.
func (r *Recorder) SetHistorySize(n int) {
	r.historySize.Set(float64(n))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
