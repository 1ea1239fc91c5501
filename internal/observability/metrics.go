package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	messagesSentTotal      *prometheus.CounterVec
	realtimeSubscribers    *prometheus.GaugeVec
	realtimeEventsTotal    *prometheus.CounterVec
	presenceUpdatesTotal   *prometheus.CounterVec
	notificationsPublished *prometheus.CounterVec
	emailDispatchTotal     *prometheus.CounterVec
	uploadRequestsTotal    *prometheus.CounterVec
	uploadRejectedTotal    *prometheus.CounterVec
	uploadLatencySeconds   prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the messaging API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "messaging_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Messages appended to conversations, by message type.",
		}, []string{"type"})

		realtimeSubscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "messaging_realtime_subscribers",
			Help: "Active live update subscriptions, by channel.",
		}, []string{"channel"})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_realtime_events_total",
			Help: "Live update events dispatched, by channel and origin.",
		}, []string{"channel", "origin"})

		presenceUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_presence_updates_total",
			Help: "Presence upserts, by resulting state.",
		}, []string{"state"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_notifications_published_total",
			Help: "Notifications stored for users, by category.",
		}, []string{"type"})

		emailDispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_email_dispatch_total",
			Help: "Out-of-band email dispatch attempts, by result.",
		}, []string{"result"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_upload_requests_total",
			Help: "Attachment uploads accepted, by attachment type.",
		}, []string{"type"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_upload_rejected_total",
			Help: "Attachment uploads rejected, by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "messaging_upload_latency_seconds",
			Help:    "Latency of attachment uploads to object storage.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			messagesSentTotal,
			realtimeSubscribers,
			realtimeEventsTotal,
			presenceUpdatesTotal,
			notificationsPublished,
			emailDispatchTotal,
			uploadRequestsTotal,
			uploadRejectedTotal,
			uploadLatencySeconds,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// MessagesSent counts appended messages by type.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// RealtimeSubscribers tracks open live update subscriptions.
func RealtimeSubscribers() *prometheus.GaugeVec {
	RegisterMetrics()
	return realtimeSubscribers
}

// RealtimeEvents counts dispatched live update events.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// PresenceUpdates counts presence upserts.
func PresenceUpdates() *prometheus.CounterVec {
	RegisterMetrics()
	return presenceUpdatesTotal
}

// NotificationsPublishedTotal counts stored notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// EmailDispatch counts email dispatch attempts.
func EmailDispatch() *prometheus.CounterVec {
	RegisterMetrics()
	return emailDispatchTotal
}

// UploadRequests counts accepted attachment uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected attachment uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency observes object storage upload latency.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}
