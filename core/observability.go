package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

// tag keys promoted from log fields onto metric tags when present.
var metricTagKeys = []string{"tenant_id", "job_type", "event_type", "subscription_id"}

// observeOperation emits one log line and a counter/duration pair for a
// service operation. Fields flow to the log entry; the well-known tenant and
// type keys also become metric tags.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = operationName(operation)
	elapsed := time.Since(startedAt)

	tags := map[string]string{"operation": operation, "status": "success"}
	if err != nil {
		tags["status"] = "failure"
	}
	for _, key := range metricTagKeys {
		if text, ok := fields[key].(string); ok {
			if text = strings.TrimSpace(text); text != "" {
				tags[key] = text
			}
		}
	}

	s.recordCounter(ctx, "dispatch."+operation+".total", 1, tags)
	s.recordHistogram(ctx, "dispatch."+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	entry := copyFields(fields)
	entry["operation"] = operation
	entry["status"] = tags["status"]
	entry["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		entry["error"] = err.Error()
		s.logError(ctx, operation+" failed", entry)
		return
	}
	s.logInfo(ctx, operation+" succeeded", entry)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if logger := s.fieldLogger(ctx, fields); logger != nil {
		logger.Info(message, logArgs(fields)...)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if logger := s.fieldLogger(ctx, fields); logger != nil {
		logger.Error(message, logArgs(fields)...)
	}
}

// fieldLogger binds context and structured fields onto the service logger,
// or returns nil when logging is disabled.
func (s *Service) fieldLogger(ctx context.Context, fields map[string]any) Logger {
	if s == nil || s.logger == nil {
		return nil
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(copyFields(fields))
	}
	return logger
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func copyFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

// logArgs renders fields as a deterministic key/value argument list.
func logArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func operationName(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	if operation == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return replacer.Replace(operation)
}
