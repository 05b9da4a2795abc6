// Package metrics exposes Prometheus metrics for live dashboards.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

// Push outcomes.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DashboardMetrics contains Prometheus metrics for dashboard sessions and socket pushes.
type DashboardMetrics struct {
	PushesTotal  *prometheus.CounterVec
	PushDuration *prometheus.HistogramVec
	UploadsTotal *prometheus.CounterVec
}

// NewDashboardMetrics creates and registers dashboard metrics with the given registerer.
func NewDashboardMetrics(registerer prometheus.Registerer) *DashboardMetrics {
	m := &DashboardMetrics{
		PushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creatordash_pushes_total",
				Help: "Total number of messages pushed to dashboard sockets",
			},
			[]string{"type", "status"},
		),
		PushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creatordash_push_duration_seconds",
				Help:    "Time to encode and queue a dashboard message",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"type"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creatordash_avatar_uploads_total",
				Help: "Total number of avatar uploads",
			},
			[]string{"status"},
		),
	}

	registerer.MustRegister(m.PushesTotal, m.PushDuration, m.UploadsTotal)
	return m
}

// RegisterGauges exposes live counts sampled at scrape time.
func RegisterGauges(registerer prometheus.Registerer, sessions, connections func() int) {
	registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "creatordash_sessions_open",
			Help: "Number of open dashboard sessions",
		}, func() float64 { return float64(sessions()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "creatordash_websocket_connections",
			Help: "Number of connected dashboard sockets",
		}, func() float64 { return float64(connections()) }),
	)
}

// ObserveUpload counts one avatar upload outcome.
func (m *DashboardMetrics) ObserveUpload(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.UploadsTotal.WithLabelValues(status).Inc()
}

// Pusher delivers a typed message to every socket of a user.
type Pusher interface {
	Push(ctx context.Context, userID uuid.UUID, msgType string, data any) error
}

// InstrumentedPusher counts and times every push of the wrapped Pusher.
type InstrumentedPusher struct {
	next    Pusher
	metrics *DashboardMetrics
}

// NewInstrumentedPusher wraps next.
func NewInstrumentedPusher(next Pusher, m *DashboardMetrics) *InstrumentedPusher {
	return &InstrumentedPusher{next: next, metrics: m}
}

// Push implements Pusher.
func (p *InstrumentedPusher) Push(ctx context.Context, userID uuid.UUID, msgType string, data any) error {
	start := time.Now()
	err := p.next.Push(ctx, userID, msgType, data)
	p.metrics.PushDuration.WithLabelValues(msgType).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	p.metrics.PushesTotal.WithLabelValues(msgType, status).Inc()
	return err
}
