package command

import (
	"strings"

	"github.com/goliatone/go-dispatch/core"
)

const (
	TypePublishEvent             = "dispatch.command.event.publish"
	TypeEnqueueJob               = "dispatch.command.job.enqueue"
	TypeCancelJob                = "dispatch.command.job.cancel"
	TypeReapStuckJobs            = "dispatch.command.job.reap"
	TypeCreateSubscription       = "dispatch.command.subscription.create"
	TypeUpdateSubscription       = "dispatch.command.subscription.update"
	TypeRotateSubscriptionSecret = "dispatch.command.subscription.rotate_secret"
	TypeRetryDeadLetter          = "dispatch.command.delivery.retry_dead_letter"
	TypeDrainTenant              = "dispatch.command.delivery.drain_tenant"
)

type PublishEventMessage struct {
	TenantID  string
	EventType core.EventType
	Data      map[string]any
}

func (PublishEventMessage) Type() string { return TypePublishEvent }

func (m PublishEventMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(string(m.EventType)) == "" {
		return commandInvalidInputError("command: event type is required")
	}
	return nil
}

type EnqueueJobMessage struct {
	Input core.EnqueueJobInput
}

func (EnqueueJobMessage) Type() string { return TypeEnqueueJob }

func (m EnqueueJobMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(m.Input.Type) == "" {
		return commandInvalidInputError("command: job type is required")
	}
	return nil
}

type CancelJobMessage struct {
	TenantID string
	JobID    string
}

func (CancelJobMessage) Type() string { return TypeCancelJob }

func (m CancelJobMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(m.JobID) == "" {
		return commandInvalidInputError("command: job id is required")
	}
	return nil
}

type ReapStuckJobsMessage struct{}

func (ReapStuckJobsMessage) Type() string { return TypeReapStuckJobs }

func (ReapStuckJobsMessage) Validate() error { return nil }

type CreateSubscriptionMessage struct {
	Input core.CreateSubscriptionInput
}

func (CreateSubscriptionMessage) Type() string { return TypeCreateSubscription }

func (m CreateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(m.Input.Name) == "" {
		return commandValidationError("name", "subscription name is required")
	}
	if strings.TrimSpace(m.Input.URL) == "" {
		return commandValidationError("url", "destination url is required")
	}
	if len(m.Input.EventTypes) == 0 {
		return commandValidationError("event_types", "at least one event type is required")
	}
	return nil
}

type UpdateSubscriptionMessage struct {
	Input core.UpdateSubscriptionInput
}

func (UpdateSubscriptionMessage) Type() string { return TypeUpdateSubscription }

func (m UpdateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(m.Input.ID) == "" {
		return commandInvalidInputError("command: subscription id is required")
	}
	return nil
}

type RotateSubscriptionSecretMessage struct {
	TenantID       string
	SubscriptionID string
}

func (RotateSubscriptionSecretMessage) Type() string { return TypeRotateSubscriptionSecret }

func (m RotateSubscriptionSecretMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return commandInvalidInputError("command: subscription id is required")
	}
	return nil
}

type RetryDeadLetterMessage struct {
	TenantID string
	OutboxID string
}

func (RetryDeadLetterMessage) Type() string { return TypeRetryDeadLetter }

func (m RetryDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	if strings.TrimSpace(m.OutboxID) == "" {
		return commandInvalidInputError("command: outbox id is required")
	}
	return nil
}

type DrainTenantMessage struct {
	TenantID string
}

func (DrainTenantMessage) Type() string { return TypeDrainTenant }

func (m DrainTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandInvalidInputError("command: tenant id is required")
	}
	return nil
}
