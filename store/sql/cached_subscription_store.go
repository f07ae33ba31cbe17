package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-dispatch/core"
)

const subscriptionCacheKeyPrefix = "go-dispatch::subscriptions::v1"

// CachedSubscriptionStore caches the hot read path of the publisher, the
// active-by-event listing, and invalidates the tenant on every write. Point
// reads pass through to the base store.
type CachedSubscriptionStore struct {
	base  core.SubscriptionStore
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base core.SubscriptionStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns the deterministic cache key for active-by-event
// reads: go-dispatch::subscriptions::v1::<tenant>::<event_type> with each
// segment URL-path escaped.
func SubscriptionCacheKey(tenantID string, eventType core.EventType) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	event := strings.TrimSpace(string(eventType))
	if tenantID == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	if event == "" {
		return "", fmt.Errorf("sqlstore: event type is required")
	}
	segments := []string{
		url.PathEscape(tenantID),
		url.PathEscape(event),
	}
	return strings.Join(append([]string{subscriptionCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedSubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	subscription, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.invalidateTenant(ctx, subscription); err != nil {
		return core.Subscription{}, err
	}
	return subscription, nil
}

func (s *CachedSubscriptionStore) Update(ctx context.Context, in core.UpdateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	subscription, err := s.base.Update(ctx, in)
	if err != nil {
		return core.Subscription{}, err
	}
	if err := s.invalidateTenant(ctx, subscription); err != nil {
		return core.Subscription{}, err
	}
	return subscription, nil
}

func (s *CachedSubscriptionStore) Get(ctx context.Context, tenantID, id string) (core.Subscription, error) {
	if s == nil || s.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.Get(ctx, tenantID, id)
}

func (s *CachedSubscriptionStore) List(ctx context.Context, tenantID string) ([]core.Subscription, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.List(ctx, tenantID)
}

func (s *CachedSubscriptionStore) ListActiveByEvent(ctx context.Context, tenantID string, eventType core.EventType) ([]core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	cacheKey, err := SubscriptionCacheKey(tenantID, eventType)
	if err != nil {
		return nil, err
	}
	subscriptions, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Subscription, error) {
		return s.base.ListActiveByEvent(ctx, tenantID, eventType)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, len(subscriptions))
	copy(out, subscriptions)
	return out, nil
}

// invalidateTenant drops the cached listing for every event type the written
// subscription touches. Fan-out reads its subscriptions inside its own
// transaction, so a stale cache entry only ever affects read surfaces.
func (s *CachedSubscriptionStore) invalidateTenant(ctx context.Context, subscription core.Subscription) error {
	for _, eventType := range subscription.EventTypes {
		cacheKey, err := SubscriptionCacheKey(subscription.TenantID, eventType)
		if err != nil {
			continue
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

var _ core.SubscriptionStore = (*CachedSubscriptionStore)(nil)
