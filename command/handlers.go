package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dispatch/core"
)

type MutatingService interface {
	Publish(ctx context.Context, tenantID string, eventType core.EventType, data map[string]any) (core.FanOutResult, error)
	EnqueueJob(ctx context.Context, in core.EnqueueJobInput) (core.Job, error)
	CancelJob(ctx context.Context, tenantID string, jobID string) (bool, error)
	ReapStuckJobs(ctx context.Context) (int, error)
	CreateSubscription(ctx context.Context, in core.CreateSubscriptionInput) (core.CreatedSubscription, error)
	UpdateSubscription(ctx context.Context, in core.UpdateSubscriptionInput) (core.Subscription, error)
	RotateSubscriptionSecret(ctx context.Context, tenantID string, subscriptionID string) (core.CreatedSubscription, error)
	RetryDeadLetter(ctx context.Context, tenantID string, outboxID string) (bool, error)
	DrainTenant(ctx context.Context, tenantID string) (core.DrainStats, error)
}

type PublishEventCommand struct {
	service MutatingService
}

func NewPublishEventCommand(service MutatingService) *PublishEventCommand {
	return &PublishEventCommand{service: service}
}

func (c *PublishEventCommand) Execute(ctx context.Context, msg PublishEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: publish service is required")
	}
	out, err := c.service.Publish(ctx, msg.TenantID, msg.EventType, msg.Data)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueJobCommand struct {
	service MutatingService
}

func NewEnqueueJobCommand(service MutatingService) *EnqueueJobCommand {
	return &EnqueueJobCommand{service: service}
}

func (c *EnqueueJobCommand) Execute(ctx context.Context, msg EnqueueJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	out, err := c.service.EnqueueJob(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelJobCommand struct {
	service MutatingService
}

func NewCancelJobCommand(service MutatingService) *CancelJobCommand {
	return &CancelJobCommand{service: service}
}

func (c *CancelJobCommand) Execute(ctx context.Context, msg CancelJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancel service is required")
	}
	out, err := c.service.CancelJob(ctx, msg.TenantID, msg.JobID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReapStuckJobsCommand struct {
	service MutatingService
}

func NewReapStuckJobsCommand(service MutatingService) *ReapStuckJobsCommand {
	return &ReapStuckJobsCommand{service: service}
}

func (c *ReapStuckJobsCommand) Execute(ctx context.Context, msg ReapStuckJobsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reaper service is required")
	}
	out, err := c.service.ReapStuckJobs(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateSubscriptionCommand struct {
	service MutatingService
}

func NewCreateSubscriptionCommand(service MutatingService) *CreateSubscriptionCommand {
	return &CreateSubscriptionCommand{service: service}
}

func (c *CreateSubscriptionCommand) Execute(ctx context.Context, msg CreateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.CreateSubscription(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateSubscriptionCommand struct {
	service MutatingService
}

func NewUpdateSubscriptionCommand(service MutatingService) *UpdateSubscriptionCommand {
	return &UpdateSubscriptionCommand{service: service}
}

func (c *UpdateSubscriptionCommand) Execute(ctx context.Context, msg UpdateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.UpdateSubscription(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RotateSubscriptionSecretCommand struct {
	service MutatingService
}

func NewRotateSubscriptionSecretCommand(service MutatingService) *RotateSubscriptionSecretCommand {
	return &RotateSubscriptionSecretCommand{service: service}
}

func (c *RotateSubscriptionSecretCommand) Execute(ctx context.Context, msg RotateSubscriptionSecretMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.RotateSubscriptionSecret(ctx, msg.TenantID, msg.SubscriptionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDeadLetterCommand struct {
	service MutatingService
}

func NewRetryDeadLetterCommand(service MutatingService) *RetryDeadLetterCommand {
	return &RetryDeadLetterCommand{service: service}
}

func (c *RetryDeadLetterCommand) Execute(ctx context.Context, msg RetryDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.RetryDeadLetter(ctx, msg.TenantID, msg.OutboxID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DrainTenantCommand struct {
	service MutatingService
}

func NewDrainTenantCommand(service MutatingService) *DrainTenantCommand {
	return &DrainTenantCommand{service: service}
}

func (c *DrainTenantCommand) Execute(ctx context.Context, msg DrainTenantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.DrainTenant(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
