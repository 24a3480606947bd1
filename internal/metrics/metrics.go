// Package metrics exposes Prometheus counters for the image pipeline and the
// sharing workflow.
//
// Every method is safe on a nil *Metrics, so components built without
// metrics (most tests) need no special casing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultUnchanged = "unchanged"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry      *prometheus.Registry
	imageOps      *prometheus.CounterVec
	imageBytes    prometheus.Counter
	notifications *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// New builds the collectors and registers them, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripsync",
			Subsystem: "images",
			Name:      "operations_total",
			Help:      "Image pipeline operations by kind and result.",
		}, []string{"op", "result"}),
		imageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tripsync",
			Subsystem: "images",
			Name:      "stored_bytes_total",
			Help:      "Bytes of transcoded images written to the object store.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripsync",
			Subsystem: "sharing",
			Name:      "notifications_total",
			Help:      "Notifications pushed to users by kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripsync",
			Subsystem: "sharing",
			Name:      "requests_total",
			Help:      "Share request transitions by outcome.",
		}, []string{"transition"}),
	}
	m.registry.MustRegister(
		m.imageOps,
		m.imageBytes,
		m.notifications,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ImageOp counts one pipeline operation ("ingest", "replace", "delete",
// "download").
func (m *Metrics) ImageOp(op, result string) {
	if m == nil {
		return
	}
	m.imageOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ImageStored(n int) {
	if m == nil {
		return
	}
	m.imageBytes.Add(float64(n))
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

// RequestTransition counts "created", "accepted", "declined" or "cancelled".
func (m *Metrics) RequestTransition(transition string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transition).Inc()
}
