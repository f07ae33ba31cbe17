package core

import (
	"context"
	"fmt"
	"strings"
)

// Publish fans an event out to every active subscription matching its type.
// The outbox rows and the delivery trigger job are written in one store
// transaction; either the event is fully recorded or nothing happened. When
// no subscription matches, the result is empty and no trigger is enqueued.
func (s *Service) Publish(ctx context.Context, tenantID string, eventType EventType, data map[string]any) (result FanOutResult, err error) {
	if s == nil {
		return FanOutResult{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "event_publish", err, map[string]any{
			"tenant_id":  tenantID,
			"event_type": string(eventType),
			"fan_out":    len(result.Entries),
		})
	}()

	tenantID = strings.TrimSpace(tenantID)
	eventType = EventType(strings.TrimSpace(string(eventType)))
	if tenantID == "" {
		return FanOutResult{}, s.mapError(fmt.Errorf("core: tenant id required"))
	}
	if eventType == "" {
		return FanOutResult{}, s.mapError(fmt.Errorf("core: event type required"))
	}
	if s.outboxStore == nil {
		return FanOutResult{}, s.mapError(fmt.Errorf("core: outbox store not configured"))
	}

	result, err = s.outboxStore.FanOut(ctx, FanOutInput{
		TenantID:           tenantID,
		EventType:          eventType,
		Data:               data,
		TriggerMaxAttempts: s.config.Queue.MaxAttempts,
		Now:                startedAt,
	})
	if err != nil {
		return FanOutResult{}, s.mapError(err)
	}

	s.recordCounter(ctx, metricEventsPublished, 1, map[string]string{
		"tenant_id":  tenantID,
		"event_type": string(eventType),
	})
	s.recordCounter(ctx, metricOutboxFanOut, int64(len(result.Entries)), map[string]string{
		"tenant_id":  tenantID,
		"event_type": string(eventType),
	})

	if result.TriggerJob != nil {
		s.notifyEnqueuer(ctx, *result.TriggerJob)
	}
	s.recordActivity(ctx, ActivityEntry{
		TenantID: tenantID,
		Actor:    "dispatch",
		Action:   "event.published",
		Object:   string(eventType),
		Status:   ActivityStatusOK,
		Metadata: map[string]any{
			"fan_out": len(result.Entries),
		},
	})
	return result, nil
}

// GetOutboxEntry loads one outbox row scoped to its tenant.
func (s *Service) GetOutboxEntry(ctx context.Context, tenantID, outboxID string) (OutboxEntry, error) {
	if s == nil {
		return OutboxEntry{}, fmt.Errorf("core: service is nil")
	}
	if s.outboxStore == nil {
		return OutboxEntry{}, s.mapError(fmt.Errorf("core: outbox store not configured"))
	}
	entry, err := s.outboxStore.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(outboxID))
	if err != nil {
		return OutboxEntry{}, s.mapError(err)
	}
	return entry, nil
}
