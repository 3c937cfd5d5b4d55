// Package metrics は階層サービスの Prometheus コレクターを定義します。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

const namespace = "orgchart"

// Metrics はリクエストと付け替え結果のコレクターをまとめたものです。
type Metrics struct {
	gatherer     prometheus.Gatherer
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	reassignment *prometheus.CounterVec
}

// New は reg にコレクターを登録した Metrics を返します。
// reg が nil の場合は新しいレジストリを使います。
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of hierarchy API requests broken down by transport, method and result.",
		}, []string{"transport", "method", "result"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency distribution for hierarchy API requests.",
			Buckets: []float64{
				0.001, 0.005, 0.01,
				0.025, 0.05, 0.1,
				0.25, 0.5, 1, 2.5,
			},
		}, []string{"transport", "method"}),
		reassignment: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "reassignments_total",
			Help:      "Reassignment requests broken down by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveRequest は 1 リクエストの結果と所要時間を記録します。
func (m *Metrics) ObserveRequest(transport, method, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, method, result).Inc()
	m.latency.WithLabelValues(transport, method).Observe(elapsed.Seconds())
}

// ObserveReassignment は hierarchy.Recorder を実装します。
func (m *Metrics) ObserveReassignment(outcome hierarchy.ReassignOutcome) {
	if m == nil {
		return
	}
	m.reassignment.WithLabelValues(string(outcome)).Inc()
}

// Handler は /metrics 用のハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
