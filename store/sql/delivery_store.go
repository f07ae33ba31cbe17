package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-dispatch/core"
)

// DeliveryStore persists the append-only per-attempt audit trail. Rows are
// never updated after insert.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo}, nil
}

func (s *DeliveryStore) Append(ctx context.Context, attempt core.DeliveryAttempt) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	attempt.TenantID = strings.TrimSpace(attempt.TenantID)
	attempt.OutboxID = strings.TrimSpace(attempt.OutboxID)
	if attempt.TenantID == "" || attempt.OutboxID == "" {
		return fmt.Errorf("sqlstore: tenant id and outbox id are required")
	}
	createdAt := attempt.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &deliveryRecord{
		ID:             uuid.NewString(),
		TenantID:       attempt.TenantID,
		OutboxID:       attempt.OutboxID,
		Attempt:        attempt.Attempt,
		RequestURL:     attempt.RequestURL,
		RequestHeaders: copyStringMap(attempt.RequestHeaders),
		RequestBody:    append([]byte(nil), attempt.RequestBody...),
		ResponseStatus: attempt.ResponseStatus,
		ResponseBody:   append([]byte(nil), attempt.ResponseBody...),
		DurationMS:     attempt.Duration.Milliseconds(),
		Success:        attempt.Success,
		ErrorMessage:   strings.TrimSpace(attempt.ErrorMessage),
		CreatedAt:      createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *DeliveryStore) ListByOutbox(ctx context.Context, tenantID, outboxID string) ([]core.DeliveryAttempt, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectBy("outbox_id", "=", strings.TrimSpace(outboxID)),
		repository.OrderBy("attempt ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.DeliveryStore = (*DeliveryStore)(nil)

// ActivityStore records pipeline audit entries.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	entry.TenantID = strings.TrimSpace(entry.TenantID)
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.TenantID == "" {
		return fmt.Errorf("sqlstore: tenant id is required")
	}
	if entry.Action == "" {
		return fmt.Errorf("sqlstore: action is required")
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := string(entry.Status)
	if strings.TrimSpace(status) == "" {
		status = string(core.ActivityStatusOK)
	}
	metadata := copyAnyMap(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}

	record := &activityRecord{
		ID:        uuid.NewString(),
		TenantID:  entry.TenantID,
		Actor:     strings.TrimSpace(entry.Actor),
		Action:    entry.Action,
		Object:    strings.TrimSpace(entry.Object),
		Status:    status,
		Metadata:  metadata,
		CreatedAt: createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// ListByTenant returns the newest audit entries for a tenant.
func (s *ActivityStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]core.ActivityEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: activity store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		out = append(out, core.ActivityEntry{
			ID:        record.ID,
			TenantID:  record.TenantID,
			Actor:     record.Actor,
			Action:    record.Action,
			Object:    record.Object,
			Status:    core.ActivityStatus(record.Status),
			Metadata:  copyAnyMap(record.Metadata),
			CreatedAt: record.CreatedAt,
		})
	}
	return out, nil
}

var _ core.ActivitySink = (*ActivityStore)(nil)
