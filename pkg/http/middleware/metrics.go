package middleware

import (
	"strconv"
	"sync"
	"time"

	"CoinTrend/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds request collectors labelled by route template.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	size     *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2.5, 9),
		}, []string{"route", "method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Requests being served.",
		}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response body size.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"route"}),
	}
	reg.MustRegister(m.requests, m.latency, m.inFlight, m.size)
	return m
}

var (
	defaultMetrics     *HTTPMetrics
	defaultMetricsOnce sync.Once
)

// Metrics records into collectors registered once on the default registry.
func Metrics(log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	defaultMetricsOnce.Do(func() { defaultMetrics = NewHTTPMetrics(prometheus.DefaultRegisterer) })
	return defaultMetrics.Middleware(log, slow)
}

// Middleware observes every request. 5xx answers are logged as errors, requests slower than slow as warnings.
func (m *HTTPMetrics) Middleware(log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			started := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			res := c.Response()
			took := time.Since(started)

			m.requests.WithLabelValues(route, method, strconv.Itoa(res.Status)).Inc()
			m.latency.WithLabelValues(route, method).Observe(took.Seconds())
			m.size.WithLabelValues(route).Observe(float64(res.Size))

			if log == nil {
				return nil
			}
			switch {
			case res.Status >= 500:
				log.Error("http request failed", logger.String("route", route), logger.String("method", method),
					logger.Int("status", res.Status), logger.Duration("took_ms", took))
			case slow > 0 && took >= slow:
				log.Warn("http request slow", logger.String("route", route), logger.String("method", method),
					logger.Int("status", res.Status), logger.Duration("took_ms", took))
			}
			return nil
		}
	}
}
