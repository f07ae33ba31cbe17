package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-dispatch/core"
)

var (
	_ gocmd.Querier[GetJobMessage, core.Job]                             = (*GetJobQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]           = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[ListSubscriptionsMessage, []core.Subscription]       = (*ListSubscriptionsQuery)(nil)
	_ gocmd.Querier[ListActiveSubscriptionsMessage, []core.Subscription] = (*ListActiveSubscriptionsQuery)(nil)
	_ gocmd.Querier[GetOutboxEntryMessage, core.OutboxEntry]             = (*GetOutboxEntryQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.OutboxEntry]          = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[ListDeliveryAttemptsMessage, []core.DeliveryAttempt] = (*ListDeliveryAttemptsQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, []core.ActivityEntry]           = (*ListActivityQuery)(nil)
)
