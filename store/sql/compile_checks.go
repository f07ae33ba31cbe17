package sqlstore

import "github.com/goliatone/go-dispatch/core"

var (
	_ core.JobStore               = (*JobStore)(nil)
	_ core.SubscriptionStore      = (*SubscriptionStore)(nil)
	_ core.SubscriptionStore      = (*CachedSubscriptionStore)(nil)
	_ core.PublishStore           = (*OutboxStore)(nil)
	_ core.DeliveryStore          = (*DeliveryStore)(nil)
	_ core.ActivitySink           = (*ActivityStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
