package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[PublishEventMessage]             = (*PublishEventCommand)(nil)
	_ gocmd.Commander[EnqueueJobMessage]               = (*EnqueueJobCommand)(nil)
	_ gocmd.Commander[CancelJobMessage]                = (*CancelJobCommand)(nil)
	_ gocmd.Commander[ReapStuckJobsMessage]            = (*ReapStuckJobsCommand)(nil)
	_ gocmd.Commander[CreateSubscriptionMessage]       = (*CreateSubscriptionCommand)(nil)
	_ gocmd.Commander[UpdateSubscriptionMessage]       = (*UpdateSubscriptionCommand)(nil)
	_ gocmd.Commander[RotateSubscriptionSecretMessage] = (*RotateSubscriptionSecretCommand)(nil)
	_ gocmd.Commander[RetryDeadLetterMessage]          = (*RetryDeadLetterCommand)(nil)
	_ gocmd.Commander[DrainTenantMessage]              = (*DrainTenantCommand)(nil)
)
