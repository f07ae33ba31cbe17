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

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	if in.TenantID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if in.Name == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription name is required")
	}
	if in.URL == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription url is required")
	}
	if len(in.EventTypes) == 0 {
		return core.Subscription{}, fmt.Errorf("sqlstore: at least one event type is required")
	}
	if len(in.EncryptedSecret) == 0 {
		return core.Subscription{}, fmt.Errorf("sqlstore: encrypted secret is required")
	}

	now := time.Now().UTC()
	eventTypes := make([]string, 0, len(in.EventTypes))
	for _, eventType := range in.EventTypes {
		if trimmed := strings.TrimSpace(string(eventType)); trimmed != "" {
			eventTypes = append(eventTypes, trimmed)
		}
	}
	record := &subscriptionRecord{
		ID:              uuid.NewString(),
		TenantID:        in.TenantID,
		Name:            in.Name,
		URL:             in.URL,
		EventTypes:      eventTypes,
		IsActive:        in.IsActive,
		EncryptedSecret: append([]byte(nil), in.EncryptedSecret...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Subscription{}, err
	}
	return created.toDomain(), nil
}

func (s *SubscriptionStore) Update(ctx context.Context, in core.UpdateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ID = strings.TrimSpace(in.ID)
	if in.TenantID == "" || in.ID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: tenant id and subscription id are required")
	}

	record, err := s.findTenantScoped(ctx, in.TenantID, in.ID)
	if err != nil {
		return core.Subscription{}, err
	}

	if in.Name != nil {
		record.Name = strings.TrimSpace(*in.Name)
	}
	if in.URL != nil {
		record.URL = strings.TrimSpace(*in.URL)
	}
	if len(in.EventTypes) > 0 {
		eventTypes := make([]string, 0, len(in.EventTypes))
		for _, eventType := range in.EventTypes {
			if trimmed := strings.TrimSpace(string(eventType)); trimmed != "" {
				eventTypes = append(eventTypes, trimmed)
			}
		}
		record.EventTypes = eventTypes
	}
	if in.IsActive != nil {
		record.IsActive = *in.IsActive
	}
	if len(in.EncryptedSecret) > 0 {
		record.EncryptedSecret = append([]byte(nil), in.EncryptedSecret...)
	}
	record.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	if err != nil {
		return core.Subscription{}, err
	}
	return updated.toDomain(), nil
}

func (s *SubscriptionStore) Get(ctx context.Context, tenantID, id string) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record, err := s.findTenantScoped(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(id))
	if err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) List(ctx context.Context, tenantID string) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// ListActiveByEvent loads the active subscriptions watching eventType. The
// match filter runs in Go because event_types is a jsonb array; tenants hold
// few subscriptions so the narrow scan is fine.
func (s *SubscriptionStore) ListActiveByEvent(ctx context.Context, tenantID string, eventType core.EventType) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true)
		}),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		subscription := record.toDomain()
		if subscription.Matches(eventType) {
			out = append(out, subscription)
		}
	}
	return out, nil
}

func (s *SubscriptionStore) findTenantScoped(ctx context.Context, tenantID, id string) (*subscriptionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("sqlstore: subscription id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrSubscriptionNotFound
	}
	return records[0], nil
}

var _ core.SubscriptionStore = (*SubscriptionStore)(nil)
