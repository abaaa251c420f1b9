package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecrm_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storecrm_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecrm_jobs_processed_total",
		Help: "Count of processed queue jobs by queue and result",
	}, []string{"queue", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storecrm_job_duration_seconds",
		Help:    "Duration of queue job executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})

	jobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecrm_job_retries_total",
		Help: "Count of job retries scheduled by queue",
	}, []string{"queue"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecrm_webhook_events_total",
		Help: "Count of inbound webhook events by platform and outcome",
	}, []string{"platform", "result"})

	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecrm_messages_sent_total",
		Help: "Count of outbound messages by result",
	}, []string{"result"})

	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storecrm_sync_runs_total",
		Help: "Count of catalog sync runs by result",
	}, []string{"result"})

	syncOrdersUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storecrm_sync_orders_upserted_total",
		Help: "Count of orders upserted during catalog syncs",
	})

	rfmContactsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storecrm_rfm_contacts_scored_total",
		Help: "Count of contacts rescored by the RFM engine",
	})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storecrm_queue_depth",
		Help: "Number of ready jobs waiting per queue",
	}, []string{"queue"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveJob records one job execution with a result label
// (success, skipped, retried, dead)
func ObserveJob(queue, result string, duration time.Duration) {
	jobsProcessed.WithLabelValues(queue, result).Inc()
	jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for a queue
func ObserveRetry(queue string) {
	jobRetries.WithLabelValues(queue).Inc()
}

// ObserveWebhookEvent records an inbound webhook outcome
func ObserveWebhookEvent(platform, result string) {
	webhookEvents.WithLabelValues(platform, result).Inc()
}

// ObserveMessageSent records an outbound message outcome
func ObserveMessageSent(result string) {
	messagesSent.WithLabelValues(result).Inc()
}

// ObserveSyncRun records a catalog sync outcome
func ObserveSyncRun(result string) {
	syncRuns.WithLabelValues(result).Inc()
}

// AddSyncOrders counts orders upserted by a sync page
func AddSyncOrders(count int) {
	syncOrdersUpserted.Add(float64(count))
}

// AddRFMContacts counts contacts rescored by an RFM run
func AddRFMContacts(count int) {
	rfmContactsScored.Add(float64(count))
}

// SetQueueDepth sets the ready-job gauge for a queue
func SetQueueDepth(queue string, depth int64) {
	if depth < 0 {
		depth = 0
	}
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}
