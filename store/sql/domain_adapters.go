package sqlstore

import (
	"time"

	"github.com/goliatone/go-dispatch/core"
)

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	job := core.Job{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Type:         r.Type,
		Status:       core.JobStatus(r.Status),
		Priority:     r.Priority,
		RunAfter:     r.RunAfter,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		LockedBy:     r.LockedBy,
		Payload:      copyAnyMap(r.Payload),
		Result:       copyAnyMap(r.Result),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LockedAt != nil {
		value := *r.LockedAt
		job.LockedAt = &value
	}
	return job
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	eventTypes := make([]core.EventType, 0, len(r.EventTypes))
	for _, eventType := range r.EventTypes {
		eventTypes = append(eventTypes, core.EventType(eventType))
	}
	return core.Subscription{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Name:            r.Name,
		URL:             r.URL,
		EventTypes:      eventTypes,
		IsActive:        r.IsActive,
		EncryptedSecret: append([]byte(nil), r.EncryptedSecret...),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r *outboxRecord) toDomain() core.OutboxEntry {
	if r == nil {
		return core.OutboxEntry{}
	}
	entry := core.OutboxEntry{
		ID:             r.ID,
		TenantID:       r.TenantID,
		SubscriptionID: r.SubscriptionID,
		EventType:      core.EventType(r.EventType),
		EventID:        r.EventID,
		Payload:        copyAnyMap(r.Payload),
		Status:         core.OutboxStatus(r.Status),
		Attempts:       r.Attempts,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
	}
	if r.NextRetryAt != nil {
		value := *r.NextRetryAt
		entry.NextRetryAt = &value
	}
	if r.LastAttemptAt != nil {
		value := *r.LastAttemptAt
		entry.LastAttemptAt = &value
	}
	if r.DeliveredAt != nil {
		value := *r.DeliveredAt
		entry.DeliveredAt = &value
	}
	return entry
}

func (r *deliveryRecord) toDomain() core.DeliveryAttempt {
	if r == nil {
		return core.DeliveryAttempt{}
	}
	return core.DeliveryAttempt{
		ID:             r.ID,
		TenantID:       r.TenantID,
		OutboxID:       r.OutboxID,
		Attempt:        r.Attempt,
		RequestURL:     r.RequestURL,
		RequestHeaders: copyStringMap(r.RequestHeaders),
		RequestBody:    append([]byte(nil), r.RequestBody...),
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   append([]byte(nil), r.ResponseBody...),
		Duration:       time.Duration(r.DurationMS) * time.Millisecond,
		Success:        r.Success,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
