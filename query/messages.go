package query

import (
	"strings"

	"github.com/goliatone/go-dispatch/core"
)

const (
	TypeGetJob                  = "dispatch.query.job.get"
	TypeGetSubscription         = "dispatch.query.subscription.get"
	TypeListSubscriptions       = "dispatch.query.subscription.list"
	TypeListActiveSubscriptions = "dispatch.query.subscription.list_active"
	TypeGetOutboxEntry          = "dispatch.query.outbox.get"
	TypeListDeadLetters         = "dispatch.query.outbox.list_dead_letters"
	TypeListDeliveryAttempts    = "dispatch.query.delivery.list_attempts"
	TypeListActivity            = "dispatch.query.activity.list"
)

type GetJobMessage struct {
	TenantID string
	JobID    string
}

func (GetJobMessage) Type() string { return TypeGetJob }

func (m GetJobMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if strings.TrimSpace(m.JobID) == "" {
		return queryInvalidInputError("query: job id is required")
	}
	return nil
}

type GetSubscriptionMessage struct {
	TenantID       string
	SubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return queryInvalidInputError("query: subscription id is required")
	}
	return nil
}

type ListSubscriptionsMessage struct {
	TenantID string
}

func (ListSubscriptionsMessage) Type() string { return TypeListSubscriptions }

func (m ListSubscriptionsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	return nil
}

type ListActiveSubscriptionsMessage struct {
	TenantID  string
	EventType core.EventType
}

func (ListActiveSubscriptionsMessage) Type() string { return TypeListActiveSubscriptions }

func (m ListActiveSubscriptionsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if strings.TrimSpace(string(m.EventType)) == "" {
		return queryInvalidInputError("query: event type is required")
	}
	return nil
}

type GetOutboxEntryMessage struct {
	TenantID string
	OutboxID string
}

func (GetOutboxEntryMessage) Type() string { return TypeGetOutboxEntry }

func (m GetOutboxEntryMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if strings.TrimSpace(m.OutboxID) == "" {
		return queryInvalidInputError("query: outbox id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	TenantID string
	Limit    int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListDeliveryAttemptsMessage struct {
	TenantID string
	OutboxID string
}

func (ListDeliveryAttemptsMessage) Type() string { return TypeListDeliveryAttempts }

func (m ListDeliveryAttemptsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if strings.TrimSpace(m.OutboxID) == "" {
		return queryInvalidInputError("query: outbox id is required")
	}
	return nil
}

type ListActivityMessage struct {
	TenantID string
	Limit    int
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryInvalidInputError("query: tenant id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
