package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TotalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	SubmissionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_submissions_total",
			Help: "Health submissions by outcome",
		},
		[]string{"source", "outcome"},
	)

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Alerts persisted by severity and category",
		},
		[]string{"severity", "category"},
	)

	AlertsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Alert candidates dropped by the suppression window",
		},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	NotificationQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_queue_size",
			Help: "Alerts waiting for notification workers",
		},
	)

	FleetStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_devices",
			Help: "Devices per derived status at the last dashboard read",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(TotalRequests)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SubmissionsProcessed)
	prometheus.MustRegister(AlertsRaised)
	prometheus.MustRegister(AlertsSuppressed)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(NotificationQueueSize)
	prometheus.MustRegister(FleetStatus)
}

// Middleware records request counts and latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
		TotalRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
