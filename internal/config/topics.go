package config

const (
	// TopicJobStart is the NSQ topic that kicks off fan-out for a newly
	// accepted job.
	TopicJobStart = "jobs.start"

	// TopicProductTask is the NSQ topic carrying one unit of work per product.
	TopicProductTask = "jobs.product"

	// TopicProductReport is the NSQ topic for per-product completion reports
	// consumed by the completion aggregator.
	TopicProductReport = "jobs.report"

	// TopicWebhook is the NSQ topic for outbound webhook deliveries.
	TopicWebhook = "jobs.webhook"
)

// Topics lists every topic the service publishes or consumes, in the order
// they are pre-created against nsqd at startup.
func Topics() []string {
	return []string{TopicJobStart, TopicProductTask, TopicProductReport, TopicWebhook}
}
