package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretProvider encrypts and decrypts subscription signing secrets at rest.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// URLValidator rejects destinations that resolve to internal addresses. It is
// consulted at subscription write time and again at every delivery attempt.
type URLValidator interface {
	Validate(ctx context.Context, rawURL string) error
}

// RetryLimiter throttles the manual dead-letter retry surface per tenant.
type RetryLimiter interface {
	Allow(ctx context.Context, tenantID string) error
}

type EnqueueJobInput struct {
	TenantID    string
	Type        string
	Payload     map[string]any
	Priority    int
	RunAfter    time.Time
	MaxAttempts int
}

type AcquireJobInput struct {
	TenantID string
	WorkerID string
	Types    []string
	Now      time.Time
}

type ReleaseJobInput struct {
	JobID    string
	WorkerID string
	Result   map[string]any
	Error    string
	// RunAfter is set when the release requeues the job for a later attempt.
	RunAfter *time.Time
	Status   JobStatus
	Now      time.Time
}

// JobStore is the durable queue. Acquire must be a single-winner atomic
// claim: exactly one concurrent caller receives a given eligible row, losers
// get ok=false with no error. Release only takes effect while the caller
// still holds the lease (locked_by matches and status is processing).
type JobStore interface {
	Create(ctx context.Context, in EnqueueJobInput) (Job, error)
	Acquire(ctx context.Context, in AcquireJobInput) (Job, bool, error)
	Release(ctx context.Context, in ReleaseJobInput) (bool, error)
	Cancel(ctx context.Context, tenantID string, jobID string, now time.Time) (bool, error)
	ReapStuck(ctx context.Context, lockedBefore time.Time, note string, now time.Time) (int, error)
	Get(ctx context.Context, tenantID string, jobID string) (Job, error)
}

type CreateSubscriptionInput struct {
	TenantID        string
	Name            string
	URL             string
	EventTypes      []EventType
	IsActive        bool
	EncryptedSecret []byte
}

type UpdateSubscriptionInput struct {
	TenantID   string
	ID         string
	Name       *string
	URL        *string
	EventTypes []EventType
	IsActive   *bool
	// EncryptedSecret is set when the secret was rotated.
	EncryptedSecret []byte
}

type SubscriptionStore interface {
	Create(ctx context.Context, in CreateSubscriptionInput) (Subscription, error)
	Update(ctx context.Context, in UpdateSubscriptionInput) (Subscription, error)
	Get(ctx context.Context, tenantID string, id string) (Subscription, error)
	List(ctx context.Context, tenantID string) ([]Subscription, error)
	ListActiveByEvent(ctx context.Context, tenantID string, eventType EventType) ([]Subscription, error)
}

type FanOutInput struct {
	TenantID  string
	EventType EventType
	Data      map[string]any
	// TriggerMaxAttempts bounds the WEBHOOK_DELIVER job enqueued with the
	// fan-out; outbox rows carry their own attempt budget.
	TriggerMaxAttempts int
	Now                time.Time
}

type FanOutResult struct {
	Entries    []OutboxEntry
	TriggerJob *Job
}

// ClaimedDelivery pairs a claimed outbox row with its subscription, loaded in
// the same transaction so the worker never observes a half-updated pair.
type ClaimedDelivery struct {
	Entry        OutboxEntry
	Subscription Subscription
}

// PublishStore owns the transactional half of the outbox pattern: FanOut
// writes every matching outbox row plus the trigger job in one transaction,
// so a concurrently-added subscription either sees the event or not, never
// partially. ClaimDue uses the same single-winner primitive as JobStore.
type PublishStore interface {
	FanOut(ctx context.Context, in FanOutInput) (FanOutResult, error)
	ClaimDue(ctx context.Context, tenantID string, now time.Time) (ClaimedDelivery, bool, error)
	MarkDelivered(ctx context.Context, tenantID string, outboxID string, now time.Time) (bool, error)
	MarkRetry(ctx context.Context, tenantID string, outboxID string, cause string, nextRetryAt time.Time, now time.Time) (bool, error)
	MarkDead(ctx context.Context, tenantID string, outboxID string, cause string, now time.Time) (bool, error)
	ResetDead(ctx context.Context, tenantID string, outboxID string, now time.Time) (bool, error)
	Get(ctx context.Context, tenantID string, outboxID string) (OutboxEntry, error)
}

// DeliveryStore is the append-only per-attempt audit log.
type DeliveryStore interface {
	Append(ctx context.Context, attempt DeliveryAttempt) error
	ListByOutbox(ctx context.Context, tenantID string, outboxID string) ([]DeliveryAttempt, error)
}

// ActivitySink receives audit entries; failures to record are logged, never
// allowed to break the pipeline.
type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type StoreProvider interface {
	JobStore() JobStore
	SubscriptionStore() SubscriptionStore
	OutboxStore() PublishStore
	DeliveryStore() DeliveryStore
	ActivitySink() ActivitySink
}

// RepositoryStoreFactory builds the store set from a persistence client. The
// sql package implements this so wiring stays one option call.
type RepositoryStoreFactory interface {
	BuildStores(client any) (StoreProvider, error)
}

// JobExecutionMessage is the process-level wake-up message bridged to an
// external job runtime. The durable trigger row in JobStore remains the
// source of truth; this transport is best effort.
type JobExecutionMessage struct {
	JobID          string
	TenantID       string
	Type           string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type DrainStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Dead      int
}

type TenantDrainer interface {
	DrainTenant(ctx context.Context, tenantID string) (DrainStats, error)
}
