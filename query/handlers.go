package query

import (
	"context"

	"github.com/goliatone/go-dispatch/core"
)

type JobReader interface {
	GetJob(ctx context.Context, tenantID string, jobID string) (core.Job, error)
}

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, tenantID string, subscriptionID string) (core.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]core.Subscription, error)
}

// ActiveSubscriptionReader serves event-routing lookups, typically through the
// cached subscription store.
type ActiveSubscriptionReader interface {
	ListActiveByEvent(ctx context.Context, tenantID string, eventType core.EventType) ([]core.Subscription, error)
}

type OutboxReader interface {
	GetOutboxEntry(ctx context.Context, tenantID string, outboxID string) (core.OutboxEntry, error)
}

type DeadLetterReader interface {
	ListDeadLetters(ctx context.Context, tenantID string, limit int) ([]core.OutboxEntry, error)
}

type DeliveryAttemptReader interface {
	ListDeliveryAttempts(ctx context.Context, tenantID string, outboxID string) ([]core.DeliveryAttempt, error)
}

type ActivityReader interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]core.ActivityEntry, error)
}

type GetJobQuery struct {
	reader JobReader
}

func NewGetJobQuery(reader JobReader) *GetJobQuery {
	return &GetJobQuery{reader: reader}
}

func (q *GetJobQuery) Query(ctx context.Context, msg GetJobMessage) (core.Job, error) {
	if q == nil || q.reader == nil {
		return core.Job{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.GetJob(ctx, msg.TenantID, msg.JobID)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.GetSubscription(ctx, msg.TenantID, msg.SubscriptionID)
}

type ListSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListSubscriptionsQuery(reader SubscriptionReader) *ListSubscriptionsQuery {
	return &ListSubscriptionsQuery{reader: reader}
}

func (q *ListSubscriptionsQuery) Query(ctx context.Context, msg ListSubscriptionsMessage) ([]core.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.ListSubscriptions(ctx, msg.TenantID)
}

type ListActiveSubscriptionsQuery struct {
	reader ActiveSubscriptionReader
}

func NewListActiveSubscriptionsQuery(reader ActiveSubscriptionReader) *ListActiveSubscriptionsQuery {
	return &ListActiveSubscriptionsQuery{reader: reader}
}

func (q *ListActiveSubscriptionsQuery) Query(
	ctx context.Context,
	msg ListActiveSubscriptionsMessage,
) ([]core.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: active subscription reader is required")
	}
	return q.reader.ListActiveByEvent(ctx, msg.TenantID, msg.EventType)
}

type GetOutboxEntryQuery struct {
	reader OutboxReader
}

func NewGetOutboxEntryQuery(reader OutboxReader) *GetOutboxEntryQuery {
	return &GetOutboxEntryQuery{reader: reader}
}

func (q *GetOutboxEntryQuery) Query(ctx context.Context, msg GetOutboxEntryMessage) (core.OutboxEntry, error) {
	if q == nil || q.reader == nil {
		return core.OutboxEntry{}, queryDependencyError("query: outbox reader is required")
	}
	return q.reader.GetOutboxEntry(ctx, msg.TenantID, msg.OutboxID)
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.OutboxEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListDeadLetters(ctx, msg.TenantID, msg.Limit)
}

type ListDeliveryAttemptsQuery struct {
	reader DeliveryAttemptReader
}

func NewListDeliveryAttemptsQuery(reader DeliveryAttemptReader) *ListDeliveryAttemptsQuery {
	return &ListDeliveryAttemptsQuery{reader: reader}
}

func (q *ListDeliveryAttemptsQuery) Query(
	ctx context.Context,
	msg ListDeliveryAttemptsMessage,
) ([]core.DeliveryAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery attempt reader is required")
	}
	return q.reader.ListDeliveryAttempts(ctx, msg.TenantID, msg.OutboxID)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) ([]core.ActivityEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: activity reader is required")
	}
	return q.reader.ListByTenant(ctx, msg.TenantID, msg.Limit)
}
