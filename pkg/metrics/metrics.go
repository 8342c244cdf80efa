// Package metrics exposes Prometheus metrics for checks, browser runs,
// HTTP traffic and the host the service runs on.
package metrics

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const namespace = "e2e_tester"

// Metrics owns a private registry so tests can create as many as they like
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	checksTotal    *prometheus.CounterVec
	checkDuration  prometheus.Histogram
	releasesTotal  *prometheus.CounterVec
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	responseSize   *prometheus.HistogramVec
	inflightRuns   prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "browser_runs_total",
				Help:      "Browser runs by outcome (passed, failed, timeout)",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "browser_run_duration_seconds",
				Help:      "Wall time of browser runs including cleanup",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 45},
			},
			[]string{"outcome"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "url_checks_total",
				Help:      "Reachability checks by result",
			},
			[]string{"accessible"},
		),
		checkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "url_check_duration_seconds",
				Help:      "Reachability check latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		releasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resource_releases_total",
				Help:      "Browser resource releases by resource and result",
			},
			[]string{"resource", "result"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),
		inflightRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_runs_inflight",
				Help:      "Browser runs currently executing",
			},
		),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.checksTotal,
		m.checkDuration,
		m.releasesTotal,
		m.requestsTotal,
		m.requestLatency,
		m.responseSize,
		m.inflightRuns,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_available_bytes",
			Help:      "Available host memory; each run starts a browser process",
		}, memAvailable),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_usage_percent",
			Help:      "Host CPU usage since the previous scrape",
		}, cpuPercent),
	)
	return m
}

func memAvailable() float64 {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return float64(vmem.Available)
}

func cpuPercent() float64 {
	// interval 0 compares against the previous call
	p, err := cpu.Percent(0, false)
	if err != nil || len(p) == 0 {
		return 0
	}
	return p[0]
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished browser run
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRelease records one resource release attempt
func (m *Metrics) ObserveRelease(resource string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.releasesTotal.WithLabelValues(resource, result).Inc()
}

// ObserveCheck records a finished reachability check
func (m *Metrics) ObserveCheck(accessible bool, d time.Duration) {
	m.checksTotal.WithLabelValues(strconv.FormatBool(accessible)).Inc()
	m.checkDuration.Observe(d.Seconds())
}

// RunStarted and RunFinished bracket a browser run for the inflight gauge
func (m *Metrics) RunStarted()  { m.inflightRuns.Inc() }
func (m *Metrics) RunFinished() { m.inflightRuns.Dec() }

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status, size int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
	m.responseSize.WithLabelValues(method, route).Observe(float64(size))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			http.Error(w, "failed to gather metrics: "+err.Error(), http.StatusInternalServerError)
			return
		}

		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				http.Error(w, "failed to encode metrics: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", string(format))
		w.Write(buf.Bytes())
	})
}
