package core

import "context"

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

const (
	metricJobsEnqueued     = "dispatch.jobs.enqueued"
	metricJobsCompleted    = "dispatch.jobs.completed"
	metricJobsReaped       = "dispatch.jobs.reaped"
	metricEventsPublished  = "dispatch.events.published"
	metricOutboxFanOut     = "dispatch.outbox.fanout"
	metricDeliveryAttempts = "dispatch.delivery.attempts"
	metricDeliveryDuration = "dispatch.delivery.duration_ms"
	metricDeadLetters      = "dispatch.delivery.dead_letters"
	metricManualRetries    = "dispatch.delivery.manual_retries"
)

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
