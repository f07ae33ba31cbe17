package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidJobStatusTransition    = errors.New("core: invalid job status transition")
	ErrInvalidOutboxStatusTransition = errors.New("core: invalid outbox status transition")
	ErrJobNotFound                   = errors.New("core: job not found")
	ErrOutboxEntryNotFound           = errors.New("core: outbox entry not found")
	ErrSubscriptionNotFound          = errors.New("core: subscription not found")
)

// JobTypeWebhookDeliver is the trigger enqueued after an event fan-out.
// Its payload carries the tenant whose outbox should be drained.
const JobTypeWebhookDeliver = "webhook.deliver"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is one unit of deferred work scoped to a tenant. Rows are never
// deleted; terminal rows double as execution history.
type Job struct {
	ID           string
	TenantID     string
	Type         string
	Status       JobStatus
	Priority     int
	RunAfter     time.Time
	Attempts     int
	MaxAttempts  int
	LockedAt     *time.Time
	LockedBy     string
	Payload      map[string]any
	Result       map[string]any
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (j *Job) TransitionTo(status JobStatus, now time.Time) error {
	if j == nil {
		return nil
	}
	if j.Status == status {
		j.UpdatedAt = now
		return nil
	}
	if !jobTransitionAllowed(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobStatusTransition, j.Status, status)
	}
	j.Status = status
	j.UpdatedAt = now
	return nil
}

func jobTransitionAllowed(current, next JobStatus) bool {
	allowed := map[JobStatus]map[JobStatus]struct{}{
		JobStatusQueued: {
			JobStatusProcessing: {},
			JobStatusCancelled:  {},
			JobStatusFailed:     {},
		},
		JobStatusProcessing: {
			JobStatusSucceeded: {},
			JobStatusFailed:    {},
			JobStatusQueued:    {},
			JobStatusCancelled: {},
		},
		JobStatusSucceeded: {},
		JobStatusFailed:    {},
		JobStatusCancelled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

type EventType string

// Subscription is a tenant-owned webhook endpoint registration. The signing
// secret is stored encrypted; the plaintext leaves the system exactly once,
// in the CreateSubscription response.
type Subscription struct {
	ID              string
	TenantID        string
	Name            string
	URL             string
	EventTypes      []EventType
	IsActive        bool
	EncryptedSecret []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Subscription) Matches(eventType EventType) bool {
	if !s.IsActive {
		return false
	}
	for _, candidate := range s.EventTypes {
		if candidate == eventType {
			return true
		}
	}
	return false
}

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusDelivered  OutboxStatus = "delivered"
	OutboxStatusDeadLetter OutboxStatus = "dead_letter"
)

// OutboxEntry is one pending delivery for one subscription. publish fans an
// event out to one entry per matching subscription; each entry retries
// independently and is retained indefinitely as an audit trail.
type OutboxEntry struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      EventType
	EventID        string
	Payload        map[string]any
	Status         OutboxStatus
	Attempts       int
	NextRetryAt    *time.Time
	LastAttemptAt  *time.Time
	LastError      string
	CreatedAt      time.Time
	DeliveredAt    *time.Time
}

func (e *OutboxEntry) TransitionTo(status OutboxStatus, now time.Time) error {
	if e == nil {
		return nil
	}
	if e.Status == status {
		return nil
	}
	if !outboxTransitionAllowed(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOutboxStatusTransition, e.Status, status)
	}
	e.Status = status
	if status == OutboxStatusDelivered {
		delivered := now
		e.DeliveredAt = &delivered
	}
	return nil
}

func outboxTransitionAllowed(current, next OutboxStatus) bool {
	allowed := map[OutboxStatus]map[OutboxStatus]struct{}{
		OutboxStatusPending: {
			OutboxStatusProcessing: {},
		},
		OutboxStatusProcessing: {
			OutboxStatusDelivered:  {},
			OutboxStatusPending:    {},
			OutboxStatusDeadLetter: {},
		},
		OutboxStatusDelivered: {},
		OutboxStatusDeadLetter: {
			OutboxStatusPending: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// EventEnvelope is the wire payload POSTed to subscribers. ID doubles as the
// receiver-side idempotency token (X-Webhook-Id); duplicates are possible and
// must be deduped by the receiver.
type EventEnvelope struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TenantID  string         `json:"tenantId"`
	CreatedAt time.Time      `json:"createdAt"`
	Data      map[string]any `json:"data"`
}

func (e EventEnvelope) ToMap() map[string]any {
	return map[string]any{
		"id":        e.ID,
		"type":      string(e.Type),
		"tenantId":  e.TenantID,
		"createdAt": e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"data":      copyAnyMap(e.Data),
	}
}

// DeliveryAttempt is one immutable audit row per outbound POST, recorded
// whether the attempt succeeded or failed.
type DeliveryAttempt struct {
	ID             string
	TenantID       string
	OutboxID       string
	Attempt        int
	RequestURL     string
	RequestHeaders map[string]string
	RequestBody    []byte
	ResponseStatus int
	ResponseBody   []byte
	Duration       time.Duration
	Success        bool
	ErrorMessage   string
	CreatedAt      time.Time
}

type ActivityStatus string

const (
	ActivityStatusOK    ActivityStatus = "ok"
	ActivityStatusWarn  ActivityStatus = "warn"
	ActivityStatusError ActivityStatus = "error"
)

type ActivityEntry struct {
	ID        string
	TenantID  string
	Actor     string
	Action    string
	Object    string
	Status    ActivityStatus
	Metadata  map[string]any
	CreatedAt time.Time
}

func normalizeEventTypes(in []EventType) []EventType {
	seen := map[EventType]struct{}{}
	out := make([]EventType, 0, len(in))
	for _, eventType := range in {
		trimmed := EventType(strings.TrimSpace(string(eventType)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
