package metrics

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/git-voucher/escrow/internal/notification"
)

const namespace = "escrow"

// Metrics owns a registry and the collectors recorded by the HTTP layer,
// the voucher lifecycle and the expiry sweeper.
type Metrics struct {
	Registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	voucherEvents *prometheus.CounterVec
	swept         prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		voucherEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voucher_events_total",
				Help:      "Voucher lifecycle transitions by kind",
			},
			[]string{"kind"},
		),
		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_expired_total",
			Help:      "Vouchers expired by the background sweeper",
		}),
	}
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := c.Method()
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
			m.duration.WithLabelValues(method, c.Route().Path).Observe(v)
		}))
		err := c.Next()
		timer.ObserveDuration()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		m.requests.WithLabelValues(method, c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

// Send counts a voucher lifecycle notification, letting Metrics sit in a
// notification.Fanout next to the real notifiers.
func (m *Metrics) Send(_ context.Context, message notification.Message) error {
	m.voucherEvents.WithLabelValues(message.Kind).Inc()
	return nil
}

// ObserveSweep adds the number of vouchers one sweep expired.
func (m *Metrics) ObserveSweep(expired int) {
	if expired > 0 {
		m.swept.Add(float64(expired))
	}
}
