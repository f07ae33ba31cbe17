package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-dispatch/core"
)

func TestGetJobQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubJobReader{
		getFn: func(_ context.Context, tenantID string, jobID string) (core.Job, error) {
			called = true
			if tenantID != "tenant_a" || jobID != "job_1" {
				t.Fatalf("unexpected get job request: %q %q", tenantID, jobID)
			}
			return core.Job{ID: jobID, TenantID: tenantID, Type: "report.generate"}, nil
		},
	}

	result, err := NewGetJobQuery(reader).Query(context.Background(), GetJobMessage{
		TenantID: "tenant_a",
		JobID:    "job_1",
	})
	if err != nil {
		t.Fatalf("query job: %v", err)
	}
	if !called {
		t.Fatalf("expected job reader invocation")
	}
	if result.ID != "job_1" {
		t.Fatalf("unexpected job result: %#v", result)
	}
}

func TestSubscriptionQueries_Delegate(t *testing.T) {
	calledGet := false
	calledList := false
	reader := stubSubscriptionReader{
		getFn: func(_ context.Context, tenantID string, subscriptionID string) (core.Subscription, error) {
			calledGet = true
			if tenantID != "tenant_a" || subscriptionID != "sub_1" {
				t.Fatalf("unexpected get subscription request: %q %q", tenantID, subscriptionID)
			}
			return core.Subscription{ID: subscriptionID, TenantID: tenantID}, nil
		},
		listFn: func(_ context.Context, tenantID string) ([]core.Subscription, error) {
			calledList = true
			if tenantID != "tenant_a" {
				t.Fatalf("unexpected list tenant %q", tenantID)
			}
			return []core.Subscription{{ID: "sub_1", TenantID: tenantID}}, nil
		},
	}

	getResult, err := NewGetSubscriptionQuery(reader).Query(context.Background(), GetSubscriptionMessage{
		TenantID:       "tenant_a",
		SubscriptionID: "sub_1",
	})
	if err != nil {
		t.Fatalf("query subscription: %v", err)
	}
	if !calledGet || getResult.ID != "sub_1" {
		t.Fatalf("expected get subscription delegation")
	}

	listResult, err := NewListSubscriptionsQuery(reader).Query(context.Background(), ListSubscriptionsMessage{
		TenantID: "tenant_a",
	})
	if err != nil {
		t.Fatalf("list subscriptions query: %v", err)
	}
	if !calledList || len(listResult) != 1 {
		t.Fatalf("expected list subscription delegation")
	}
}

func TestListActiveSubscriptionsQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubActiveSubscriptionReader{
		listFn: func(_ context.Context, tenantID string, eventType core.EventType) ([]core.Subscription, error) {
			called = true
			if tenantID != "tenant_a" || eventType != "order.created" {
				t.Fatalf("unexpected active list request: %q %q", tenantID, eventType)
			}
			return []core.Subscription{
				{ID: "sub_1", TenantID: tenantID, IsActive: true},
				{ID: "sub_2", TenantID: tenantID, IsActive: true},
			}, nil
		},
	}

	result, err := NewListActiveSubscriptionsQuery(reader).Query(context.Background(), ListActiveSubscriptionsMessage{
		TenantID:  "tenant_a",
		EventType: "order.created",
	})
	if err != nil {
		t.Fatalf("query active subscriptions: %v", err)
	}
	if !called {
		t.Fatalf("expected active subscription reader invocation")
	}
	if len(result) != 2 {
		t.Fatalf("unexpected active subscription result: %#v", result)
	}
}

func TestOutboxQueries_Delegate(t *testing.T) {
	calledGet := false
	calledDead := false
	outboxReader := stubOutboxReader{
		getFn: func(_ context.Context, tenantID string, outboxID string) (core.OutboxEntry, error) {
			calledGet = true
			if tenantID != "tenant_a" || outboxID != "out_1" {
				t.Fatalf("unexpected get outbox request: %q %q", tenantID, outboxID)
			}
			return core.OutboxEntry{ID: outboxID, TenantID: tenantID, Status: core.OutboxStatusPending}, nil
		},
	}
	deadReader := stubDeadLetterReader{
		listFn: func(_ context.Context, tenantID string, limit int) ([]core.OutboxEntry, error) {
			calledDead = true
			if tenantID != "tenant_a" || limit != 25 {
				t.Fatalf("unexpected dead letter request: %q %d", tenantID, limit)
			}
			return []core.OutboxEntry{{ID: "out_dead", TenantID: tenantID, Status: core.OutboxStatusDeadLetter}}, nil
		},
	}

	getResult, err := NewGetOutboxEntryQuery(outboxReader).Query(context.Background(), GetOutboxEntryMessage{
		TenantID: "tenant_a",
		OutboxID: "out_1",
	})
	if err != nil {
		t.Fatalf("query outbox entry: %v", err)
	}
	if !calledGet || getResult.ID != "out_1" {
		t.Fatalf("expected get outbox delegation")
	}

	deadResult, err := NewListDeadLettersQuery(deadReader).Query(context.Background(), ListDeadLettersMessage{
		TenantID: "tenant_a",
		Limit:    25,
	})
	if err != nil {
		t.Fatalf("list dead letters query: %v", err)
	}
	if !calledDead || len(deadResult) != 1 || deadResult[0].Status != core.OutboxStatusDeadLetter {
		t.Fatalf("expected dead letter delegation, got %#v", deadResult)
	}
}

func TestListDeliveryAttemptsQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubDeliveryAttemptReader{
		listFn: func(_ context.Context, tenantID string, outboxID string) ([]core.DeliveryAttempt, error) {
			called = true
			if tenantID != "tenant_a" || outboxID != "out_1" {
				t.Fatalf("unexpected attempts request: %q %q", tenantID, outboxID)
			}
			return []core.DeliveryAttempt{
				{ID: "att_1", OutboxID: outboxID, Attempt: 1, Success: false},
				{ID: "att_2", OutboxID: outboxID, Attempt: 2, Success: true},
			}, nil
		},
	}

	result, err := NewListDeliveryAttemptsQuery(reader).Query(context.Background(), ListDeliveryAttemptsMessage{
		TenantID: "tenant_a",
		OutboxID: "out_1",
	})
	if err != nil {
		t.Fatalf("query delivery attempts: %v", err)
	}
	if !called {
		t.Fatalf("expected delivery attempt reader invocation")
	}
	if len(result) != 2 || result[1].Attempt != 2 {
		t.Fatalf("unexpected attempt result: %#v", result)
	}
}

func TestListActivityQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubActivityReader{
		listFn: func(_ context.Context, tenantID string, limit int) ([]core.ActivityEntry, error) {
			called = true
			if tenantID != "tenant_a" || limit != 50 {
				t.Fatalf("unexpected activity request: %q %d", tenantID, limit)
			}
			return []core.ActivityEntry{{ID: "act_1", TenantID: tenantID, Action: "delivery.dead_letter"}}, nil
		},
	}

	result, err := NewListActivityQuery(reader).Query(context.Background(), ListActivityMessage{
		TenantID: "tenant_a",
		Limit:    50,
	})
	if err != nil {
		t.Fatalf("query activity: %v", err)
	}
	if !called {
		t.Fatalf("expected activity reader invocation")
	}
	if len(result) != 1 || result[0].ID != "act_1" {
		t.Fatalf("unexpected activity result: %#v", result)
	}
}

func TestQueries_NilReaderErrors(t *testing.T) {
	if _, err := NewGetJobQuery(nil).Query(context.Background(), GetJobMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if _, err := NewListDeadLettersQuery(nil).Query(context.Background(), ListDeadLettersMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
	var qry *ListActivityQuery
	if _, err := qry.Query(context.Background(), ListActivityMessage{}); err == nil {
		t.Fatalf("expected dependency error on nil receiver")
	}
}

func TestQueryMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name:    "get job valid",
			msg:     GetJobMessage{TenantID: "tenant_a", JobID: "job_1"},
			wantErr: false,
		},
		{
			name:    "get job missing tenant",
			msg:     GetJobMessage{JobID: "job_1"},
			wantErr: true,
		},
		{
			name:    "get job missing id",
			msg:     GetJobMessage{TenantID: "tenant_a"},
			wantErr: true,
		},
		{
			name:    "get subscription missing id",
			msg:     GetSubscriptionMessage{TenantID: "tenant_a"},
			wantErr: true,
		},
		{
			name:    "list subscriptions valid",
			msg:     ListSubscriptionsMessage{TenantID: "tenant_a"},
			wantErr: false,
		},
		{
			name:    "list active missing event type",
			msg:     ListActiveSubscriptionsMessage{TenantID: "tenant_a"},
			wantErr: true,
		},
		{
			name:    "list active valid",
			msg:     ListActiveSubscriptionsMessage{TenantID: "tenant_a", EventType: "order.created"},
			wantErr: false,
		},
		{
			name:    "get outbox missing id",
			msg:     GetOutboxEntryMessage{TenantID: "tenant_a"},
			wantErr: true,
		},
		{
			name:    "dead letters negative limit",
			msg:     ListDeadLettersMessage{TenantID: "tenant_a", Limit: -1},
			wantErr: true,
		},
		{
			name:    "dead letters zero limit valid",
			msg:     ListDeadLettersMessage{TenantID: "tenant_a"},
			wantErr: false,
		},
		{
			name:    "delivery attempts missing outbox",
			msg:     ListDeliveryAttemptsMessage{TenantID: "tenant_a"},
			wantErr: true,
		},
		{
			name:    "activity negative limit",
			msg:     ListActivityMessage{TenantID: "tenant_a", Limit: -5},
			wantErr: true,
		},
		{
			name:    "activity valid",
			msg:     ListActivityMessage{TenantID: "tenant_a", Limit: 100},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubJobReader struct {
	getFn func(ctx context.Context, tenantID string, jobID string) (core.Job, error)
}

func (s stubJobReader) GetJob(ctx context.Context, tenantID string, jobID string) (core.Job, error) {
	if s.getFn == nil {
		return core.Job{}, fmt.Errorf("get job not configured")
	}
	return s.getFn(ctx, tenantID, jobID)
}

type stubSubscriptionReader struct {
	getFn  func(ctx context.Context, tenantID string, subscriptionID string) (core.Subscription, error)
	listFn func(ctx context.Context, tenantID string) ([]core.Subscription, error)
}

func (s stubSubscriptionReader) GetSubscription(
	ctx context.Context,
	tenantID string,
	subscriptionID string,
) (core.Subscription, error) {
	if s.getFn == nil {
		return core.Subscription{}, fmt.Errorf("get subscription not configured")
	}
	return s.getFn(ctx, tenantID, subscriptionID)
}

func (s stubSubscriptionReader) ListSubscriptions(ctx context.Context, tenantID string) ([]core.Subscription, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list subscriptions not configured")
	}
	return s.listFn(ctx, tenantID)
}

type stubActiveSubscriptionReader struct {
	listFn func(ctx context.Context, tenantID string, eventType core.EventType) ([]core.Subscription, error)
}

func (s stubActiveSubscriptionReader) ListActiveByEvent(
	ctx context.Context,
	tenantID string,
	eventType core.EventType,
) ([]core.Subscription, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list active subscriptions not configured")
	}
	return s.listFn(ctx, tenantID, eventType)
}

type stubOutboxReader struct {
	getFn func(ctx context.Context, tenantID string, outboxID string) (core.OutboxEntry, error)
}

func (s stubOutboxReader) GetOutboxEntry(
	ctx context.Context,
	tenantID string,
	outboxID string,
) (core.OutboxEntry, error) {
	if s.getFn == nil {
		return core.OutboxEntry{}, fmt.Errorf("get outbox entry not configured")
	}
	return s.getFn(ctx, tenantID, outboxID)
}

type stubDeadLetterReader struct {
	listFn func(ctx context.Context, tenantID string, limit int) ([]core.OutboxEntry, error)
}

func (s stubDeadLetterReader) ListDeadLetters(
	ctx context.Context,
	tenantID string,
	limit int,
) ([]core.OutboxEntry, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list dead letters not configured")
	}
	return s.listFn(ctx, tenantID, limit)
}

type stubDeliveryAttemptReader struct {
	listFn func(ctx context.Context, tenantID string, outboxID string) ([]core.DeliveryAttempt, error)
}

func (s stubDeliveryAttemptReader) ListDeliveryAttempts(
	ctx context.Context,
	tenantID string,
	outboxID string,
) ([]core.DeliveryAttempt, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list delivery attempts not configured")
	}
	return s.listFn(ctx, tenantID, outboxID)
}

type stubActivityReader struct {
	listFn func(ctx context.Context, tenantID string, limit int) ([]core.ActivityEntry, error)
}

func (s stubActivityReader) ListByTenant(
	ctx context.Context,
	tenantID string,
	limit int,
) ([]core.ActivityEntry, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list tenant activity not configured")
	}
	return s.listFn(ctx, tenantID, limit)
}

var (
	_ JobReader                = stubJobReader{}
	_ SubscriptionReader       = stubSubscriptionReader{}
	_ ActiveSubscriptionReader = stubActiveSubscriptionReader{}
	_ OutboxReader             = stubOutboxReader{}
	_ DeadLetterReader         = stubDeadLetterReader{}
	_ DeliveryAttemptReader    = stubDeliveryAttemptReader{}
	_ ActivityReader           = stubActivityReader{}
)
