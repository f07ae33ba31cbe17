package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type jobRecord struct {
	bun.BaseModel `bun:"table:dispatch_jobs,alias:dj"`

	ID           string         `bun:"id,pk"`
	TenantID     string         `bun:"tenant_id,notnull"`
	Type         string         `bun:"type,notnull"`
	Status       string         `bun:"status,notnull"`
	Priority     int            `bun:"priority,notnull"`
	RunAfter     time.Time      `bun:"run_after,notnull"`
	Attempts     int            `bun:"attempts,notnull"`
	MaxAttempts  int            `bun:"max_attempts,notnull"`
	LockedAt     *time.Time     `bun:"locked_at,nullzero"`
	LockedBy     string         `bun:"locked_by"`
	Payload      map[string]any `bun:"payload,type:jsonb,notnull"`
	Result       map[string]any `bun:"result,type:jsonb"`
	ErrorMessage string         `bun:"error_message"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:dispatch_subscriptions,alias:ds"`

	ID              string     `bun:"id,pk"`
	TenantID        string     `bun:"tenant_id,notnull"`
	Name            string     `bun:"name,notnull"`
	URL             string     `bun:"url,notnull"`
	EventTypes      []string   `bun:"event_types,type:jsonb,notnull"`
	IsActive        bool       `bun:"is_active,notnull"`
	EncryptedSecret []byte     `bun:"encrypted_secret,notnull"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete"`
}

type outboxRecord struct {
	bun.BaseModel `bun:"table:dispatch_outbox,alias:dox"`

	ID             string         `bun:"id,pk"`
	TenantID       string         `bun:"tenant_id,notnull"`
	SubscriptionID string         `bun:"subscription_id,notnull"`
	EventType      string         `bun:"event_type,notnull"`
	EventID        string         `bun:"event_id,notnull"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	NextRetryAt    *time.Time     `bun:"next_retry_at,nullzero"`
	LastAttemptAt  *time.Time     `bun:"last_attempt_at,nullzero"`
	LastError      string         `bun:"last_error"`
	DeliveredAt    *time.Time     `bun:"delivered_at,nullzero"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:dispatch_deliveries,alias:dd"`

	ID             string            `bun:"id,pk"`
	TenantID       string            `bun:"tenant_id,notnull"`
	OutboxID       string            `bun:"outbox_id,notnull"`
	Attempt        int               `bun:"attempt,notnull"`
	RequestURL     string            `bun:"request_url,notnull"`
	RequestHeaders map[string]string `bun:"request_headers,type:jsonb"`
	RequestBody    []byte            `bun:"request_body"`
	ResponseStatus int               `bun:"response_status"`
	ResponseBody   []byte            `bun:"response_body"`
	DurationMS     int64             `bun:"duration_ms,notnull"`
	Success        bool              `bun:"success,notnull"`
	ErrorMessage   string            `bun:"error_message"`
	CreatedAt      time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type activityRecord struct {
	bun.BaseModel `bun:"table:dispatch_activity,alias:da"`

	ID        string         `bun:"id,pk"`
	TenantID  string         `bun:"tenant_id,notnull"`
	Actor     string         `bun:"actor,notnull"`
	Action    string         `bun:"action,notnull"`
	Object    string         `bun:"object"`
	Status    string         `bun:"status,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
