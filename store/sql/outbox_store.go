package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-dispatch/core"
)

// OutboxStore implements the transactional fan-out half of the pipeline.
// FanOut writes the outbox rows and the trigger job in one transaction with
// the subscription read, so the row set matches exactly the subscriptions
// that were active and matching at commit time.
type OutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*outboxRecord]
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*outboxRecord](db, outboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo}, nil
}

func (s *OutboxStore) FanOut(ctx context.Context, in core.FanOutInput) (core.FanOutResult, error) {
	if s == nil || s.db == nil {
		return core.FanOutResult{}, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	eventType := strings.TrimSpace(string(in.EventType))
	if in.TenantID == "" {
		return core.FanOutResult{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if eventType == "" {
		return core.FanOutResult{}, fmt.Errorf("sqlstore: event type is required")
	}
	if in.TriggerMaxAttempts <= 0 {
		in.TriggerMaxAttempts = 5
	}
	now := in.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	envelope := core.EventEnvelope{
		ID:        uuid.NewString(),
		Type:      core.EventType(eventType),
		TenantID:  in.TenantID,
		CreatedAt: now,
		Data:      copyAnyMap(in.Data),
	}
	payload := envelope.ToMap()

	var result core.FanOutResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var subscriptions []subscriptionRecord
		err := tx.NewSelect().
			Model(&subscriptions).
			Where("?TableAlias.tenant_id = ?", in.TenantID).
			Where("?TableAlias.is_active = ?", true).
			Where("?TableAlias.deleted_at IS NULL").
			OrderExpr("?TableAlias.created_at ASC").
			Scan(ctx)
		if err != nil {
			return err
		}

		entries := make([]core.OutboxEntry, 0, len(subscriptions))
		records := make([]*outboxRecord, 0, len(subscriptions))
		for i := range subscriptions {
			subscription := subscriptions[i].toDomain()
			if !subscription.Matches(envelope.Type) {
				continue
			}
			record := &outboxRecord{
				ID:             uuid.NewString(),
				TenantID:       in.TenantID,
				SubscriptionID: subscription.ID,
				EventType:      eventType,
				EventID:        envelope.ID,
				Payload:        copyAnyMap(payload),
				Status:         string(core.OutboxStatusPending),
				Attempts:       0,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			records = append(records, record)
			entries = append(entries, record.toDomain())
		}
		if len(records) == 0 {
			result = core.FanOutResult{}
			return nil
		}
		if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
			return err
		}

		trigger := &jobRecord{
			ID:          uuid.NewString(),
			TenantID:    in.TenantID,
			Type:        core.JobTypeWebhookDeliver,
			Status:      string(core.JobStatusQueued),
			RunAfter:    now,
			Attempts:    0,
			MaxAttempts: in.TriggerMaxAttempts,
			Payload: map[string]any{
				"event_id":   envelope.ID,
				"event_type": eventType,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.NewInsert().Model(trigger).Exec(ctx); err != nil {
			return err
		}

		triggerJob := trigger.toDomain()
		result = core.FanOutResult{Entries: entries, TriggerJob: &triggerJob}
		return nil
	})
	if err != nil {
		return core.FanOutResult{}, err
	}
	return result, nil
}

// ClaimDue claims one due entry and loads its subscription in the same
// transaction. Losers of a concurrent claim get ok=false.
func (s *OutboxStore) ClaimDue(ctx context.Context, tenantID string, now time.Time) (core.ClaimedDelivery, bool, error) {
	if s == nil || s.db == nil {
		return core.ClaimedDelivery{}, false, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.ClaimedDelivery{}, false, fmt.Errorf("sqlstore: tenant id is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	query := `
WITH claimed AS (
	SELECT id
	FROM dispatch_outbox
	WHERE status = ?
	  AND tenant_id = ?
	  AND (next_retry_at IS NULL OR next_retry_at <= ?)
	ORDER BY created_at ASC
	LIMIT 1
)
UPDATE dispatch_outbox
SET status = ?,
	attempts = attempts + 1,
	last_attempt_at = ?,
	updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	tenant_id,
	subscription_id,
	event_type,
	event_id,
	payload,
	status,
	attempts,
	next_retry_at,
	last_attempt_at,
	last_error,
	delivered_at,
	created_at,
	updated_at
`

	var claimed core.ClaimedDelivery
	ok := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var records []outboxRecord
		err := tx.NewRaw(
			query,
			string(core.OutboxStatusPending),
			tenantID,
			now,
			string(core.OutboxStatusProcessing),
			now,
			now,
			string(core.OutboxStatusPending),
		).Scan(ctx, &records)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		entry := records[0].toDomain()

		subscription := &subscriptionRecord{}
		err = tx.NewSelect().
			Model(subscription).
			Where("?TableAlias.id = ?", entry.SubscriptionID).
			Where("?TableAlias.tenant_id = ?", tenantID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("sqlstore: subscription %s not found for outbox entry %s", entry.SubscriptionID, entry.ID)
			}
			return err
		}

		claimed = core.ClaimedDelivery{
			Entry:        entry,
			Subscription: subscription.toDomain(),
		}
		ok = true
		return nil
	})
	if err != nil {
		return core.ClaimedDelivery{}, false, err
	}
	return claimed, ok, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, tenantID, outboxID string, now time.Time) (bool, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.settle(ctx, tenantID, outboxID, func(update *bun.UpdateQuery) *bun.UpdateQuery {
		return update.
			Set("status = ?", string(core.OutboxStatusDelivered)).
			Set("delivered_at = ?", now.UTC()).
			Set("next_retry_at = NULL").
			Set("last_error = ?", "").
			Set("updated_at = ?", now.UTC())
	})
}

func (s *OutboxStore) MarkRetry(ctx context.Context, tenantID, outboxID, cause string, nextRetryAt, now time.Time) (bool, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.settle(ctx, tenantID, outboxID, func(update *bun.UpdateQuery) *bun.UpdateQuery {
		return update.
			Set("status = ?", string(core.OutboxStatusPending)).
			Set("next_retry_at = ?", nextRetryAt.UTC()).
			Set("last_error = ?", strings.TrimSpace(cause)).
			Set("updated_at = ?", now.UTC())
	})
}

func (s *OutboxStore) MarkDead(ctx context.Context, tenantID, outboxID, cause string, now time.Time) (bool, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.settle(ctx, tenantID, outboxID, func(update *bun.UpdateQuery) *bun.UpdateQuery {
		return update.
			Set("status = ?", string(core.OutboxStatusDeadLetter)).
			Set("next_retry_at = NULL").
			Set("last_error = ?", strings.TrimSpace(cause)).
			Set("updated_at = ?", now.UTC())
	})
}

// settle applies a terminal update to a processing row. The status guard
// keeps stale workers from rewriting rows they no longer own.
func (s *OutboxStore) settle(
	ctx context.Context,
	tenantID string,
	outboxID string,
	apply func(*bun.UpdateQuery) *bun.UpdateQuery,
) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	outboxID = strings.TrimSpace(outboxID)
	if tenantID == "" || outboxID == "" {
		return false, fmt.Errorf("sqlstore: tenant id and outbox id are required")
	}

	update := s.db.NewUpdate().
		Model((*outboxRecord)(nil)).
		Where("id = ?", outboxID).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", string(core.OutboxStatusProcessing))
	res, err := apply(update).Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

// ResetDead moves a dead-lettered entry back to pending with a clean attempt
// budget so the drain loop picks it up again.
func (s *OutboxStore) ResetDead(ctx context.Context, tenantID, outboxID string, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	outboxID = strings.TrimSpace(outboxID)
	if tenantID == "" || outboxID == "" {
		return false, fmt.Errorf("sqlstore: tenant id and outbox id are required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res, err := s.db.NewUpdate().
		Model((*outboxRecord)(nil)).
		Set("status = ?", string(core.OutboxStatusPending)).
		Set("attempts = ?", 0).
		Set("next_retry_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", outboxID).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", string(core.OutboxStatusDeadLetter)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func (s *OutboxStore) Get(ctx context.Context, tenantID, outboxID string) (core.OutboxEntry, error) {
	if s == nil || s.repo == nil {
		return core.OutboxEntry{}, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	outboxID = strings.TrimSpace(outboxID)
	if outboxID == "" {
		return core.OutboxEntry{}, fmt.Errorf("sqlstore: outbox id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", outboxID),
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.OutboxEntry{}, err
	}
	if len(records) == 0 {
		return core.OutboxEntry{}, core.ErrOutboxEntryNotFound
	}
	return records[0].toDomain(), nil
}

// ListDeadLetters returns dead-lettered entries for a tenant, oldest first.
func (s *OutboxStore) ListDeadLetters(ctx context.Context, tenantID string, limit int) ([]core.OutboxEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id is required")
	}
	if limit <= 0 {
		limit = 100
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectBy("status", "=", string(core.OutboxStatusDeadLetter)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.OutboxEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.PublishStore = (*OutboxStore)(nil)
