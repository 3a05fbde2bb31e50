// Package metrics owns the Prometheus registry for portwatch-server and the
// collectors the engine reports into. A nil *Metrics is valid and records
// nothing, so engine packages can be used without a registry in tests.
package metrics

import (
	"log"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Acquisition results reported by the reservation manager.
const (
	ResultGranted  = "granted"
	ResultRenewed  = "renewed"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Metrics holds every collector registered by the server.
type Metrics struct {
	r *prometheus.Registry

	Acquisitions *prometheus.CounterVec
	Releases     prometheus.Counter
	Evictions    prometheus.Counter
	ActiveLeases prometheus.Gauge

	Classifications *prometheus.CounterVec
	Degraded        *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	AlertsFired     *prometheus.CounterVec
	WSClients       prometheus.Gauge
}

// New creates a registry with the process collectors and all portwatch
// collectors registered.
func New() *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		r: r,
		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portwatch_reservation_acquisitions_total",
			Help: "reservation acquire attempts by result",
		}, []string{"result"}),
		Releases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portwatch_reservation_releases_total",
			Help: "explicit reservation releases",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portwatch_reservation_evictions_total",
			Help: "expired reservations removed by the sweep",
		}),
		ActiveLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portwatch_reservations_active",
			Help: "reservations active at the last listing or sweep",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portwatch_status_classifications_total",
			Help: "status classifications by resulting band",
		}, []string{"band"}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portwatch_degraded_operations_total",
			Help: "operations that fell back because a dependency was unavailable",
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portwatch_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portwatch_alerts_fired_total",
			Help: "alerts fired by rule",
		}, []string{"rule"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portwatch_ws_clients",
			Help: "connected websocket clients",
		}),
	}

	r.MustRegister(
		m.Acquisitions, m.Releases, m.Evictions, m.ActiveLeases,
		m.Classifications, m.Degraded, m.HTTPRequests, m.AlertsFired, m.WSClients,
	)
	return m
}

// Registry returns the underlying registerer.
func (m *Metrics) Registry() prometheus.Registerer {
	return m.r
}

// Gatherer returns the underlying gatherer, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.r
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.r, promhttp.HandlerOpts{
		ErrorLog: log.New(slogWriter{}, "", 0),
		Registry: m.r,
	})
}

// ObserveAcquire counts one acquire attempt with the given result.
func (m *Metrics) ObserveAcquire(result string) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(result).Inc()
}

// ObserveRelease counts one explicit release.
func (m *Metrics) ObserveRelease() {
	if m == nil {
		return
	}
	m.Releases.Inc()
}

// ObserveEvicted counts n swept leases.
func (m *Metrics) ObserveEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evictions.Add(float64(n))
}

// SetActive records the number of currently active leases.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveLeases.Set(float64(n))
}

// ObserveBand counts one classification into band.
func (m *Metrics) ObserveBand(band string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(band).Inc()
}

// ObserveDegraded counts one degraded operation.
func (m *Metrics) ObserveDegraded(op string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(op).Inc()
}

// ObserveHTTP counts one API response.
func (m *Metrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveAlert counts one fired alert.
func (m *Metrics) ObserveAlert(rule string) {
	if m == nil {
		return
	}
	m.AlertsFired.WithLabelValues(rule).Inc()
}

// SetWSClients records the number of connected websocket clients.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// slogWriter adapts promhttp's error logger to slog.
type slogWriter struct{}

func (slogWriter) Write(p []byte) (int, error) {
	slog.Error("metrics: promhttp", "err", string(p))
	return len(p), nil
}
