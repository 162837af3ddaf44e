package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"venuehub/internal/app/messaging"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent         prometheus.Counter
	conversationsCreated prometheus.Counter
	fallbacks            *prometheus.CounterVec
	subscriptions        *prometheus.GaugeVec
	requests             *prometheus.CounterVec
	latency              *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Messages appended to conversations.",
		}),
		conversationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_conversations_created_total",
			Help: "Conversations created.",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_index_fallbacks_total",
			Help: "Ordered queries that fell back to unordered reads.",
		}, []string{"stream"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "messaging_subscriptions_active",
			Help: "Live subscriptions by stream.",
		}, []string{"stream"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesSent, m.conversationsCreated, m.fallbacks, m.subscriptions, m.requests, m.latency,
	)
	return m
}

func (m *Metrics) MessageSent()         { m.messagesSent.Inc() }
func (m *Metrics) ConversationCreated() { m.conversationsCreated.Inc() }

func (m *Metrics) FallbackActivated(stream string) {
	m.fallbacks.WithLabelValues(stream).Inc()
}

func (m *Metrics) SubscriptionOpened(stream string) {
	m.subscriptions.WithLabelValues(stream).Inc()
}

func (m *Metrics) SubscriptionClosed(stream string) {
	m.subscriptions.WithLabelValues(stream).Dec()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records request counts and latency per route template.
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var _ messaging.Recorder = (*Metrics)(nil)
