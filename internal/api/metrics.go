package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 记录对远端接口的请求次数与耗时。
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标；reg 为 nil 时只创建不注册。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siteadmin",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the content API.",
		}, []string{"resource", "method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "siteadmin",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests sent to the content API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *Metrics) observe(resource, method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if resource == "" {
		resource = "unknown"
	}
	m.requests.WithLabelValues(resource, method, outcome).Inc()
	m.duration.WithLabelValues(resource, method).Observe(elapsed.Seconds())
}
