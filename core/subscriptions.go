package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// CreatedSubscription carries the one-time plaintext signing secret alongside
// the stored record. The secret is never readable again after this response.
type CreatedSubscription struct {
	Subscription Subscription
	Secret       string
}

// CreateSubscription registers a webhook destination. The URL is checked
// against the destination guard before anything is stored, and the generated
// signing secret is encrypted at rest.
func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (created CreatedSubscription, err error) {
	if s == nil {
		return CreatedSubscription{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "subscription_create", err, map[string]any{
			"tenant_id": in.TenantID,
		})
	}()

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	in.EventTypes = normalizeEventTypes(in.EventTypes)
	if in.TenantID == "" {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: tenant id required"))
	}
	if in.Name == "" {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: subscription name required"))
	}
	if len(in.EventTypes) == 0 {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: at least one event type required"))
	}
	if s.subscriptionStore == nil {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: subscription store not configured"))
	}
	if s.secretProvider == nil {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: secret provider not configured"))
	}
	if err = s.validateDestination(ctx, in.URL); err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}

	secret, err := generateSigningSecret()
	if err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}
	encrypted, err := s.secretProvider.Encrypt(ctx, []byte(secret))
	if err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}
	in.EncryptedSecret = encrypted

	subscription, err := s.subscriptionStore.Create(ctx, in)
	if err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}
	s.recordActivity(ctx, ActivityEntry{
		TenantID: subscription.TenantID,
		Actor:    "dispatch",
		Action:   "subscription.created",
		Object:   subscription.ID,
		Status:   ActivityStatusOK,
	})
	return CreatedSubscription{Subscription: subscription, Secret: secret}, nil
}

// UpdateSubscription applies a partial update. A changed URL passes through
// the destination guard again.
func (s *Service) UpdateSubscription(ctx context.Context, in UpdateSubscriptionInput) (subscription Subscription, err error) {
	if s == nil {
		return Subscription{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "subscription_update", err, map[string]any{
			"tenant_id":       in.TenantID,
			"subscription_id": in.ID,
		})
	}()

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.ID = strings.TrimSpace(in.ID)
	if in.TenantID == "" || in.ID == "" {
		return Subscription{}, s.mapError(fmt.Errorf("core: tenant id and subscription id required"))
	}
	if s.subscriptionStore == nil {
		return Subscription{}, s.mapError(fmt.Errorf("core: subscription store not configured"))
	}
	if in.URL != nil {
		trimmed := strings.TrimSpace(*in.URL)
		if err = s.validateDestination(ctx, trimmed); err != nil {
			return Subscription{}, s.mapError(err)
		}
		in.URL = &trimmed
	}
	if len(in.EventTypes) > 0 {
		in.EventTypes = normalizeEventTypes(in.EventTypes)
	}

	subscription, err = s.subscriptionStore.Update(ctx, in)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return subscription, nil
}

// RotateSubscriptionSecret replaces the signing secret and returns the new
// plaintext once. Deliveries claimed after the rotation commit sign with the
// new secret.
func (s *Service) RotateSubscriptionSecret(ctx context.Context, tenantID, subscriptionID string) (created CreatedSubscription, err error) {
	if s == nil {
		return CreatedSubscription{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "subscription_rotate_secret", err, map[string]any{
			"tenant_id":       tenantID,
			"subscription_id": subscriptionID,
		})
	}()

	tenantID = strings.TrimSpace(tenantID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	if tenantID == "" || subscriptionID == "" {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: tenant id and subscription id required"))
	}
	if s.subscriptionStore == nil {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: subscription store not configured"))
	}
	if s.secretProvider == nil {
		return CreatedSubscription{}, s.mapError(fmt.Errorf("core: secret provider not configured"))
	}

	secret, err := generateSigningSecret()
	if err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}
	encrypted, err := s.secretProvider.Encrypt(ctx, []byte(secret))
	if err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}
	subscription, err := s.subscriptionStore.Update(ctx, UpdateSubscriptionInput{
		TenantID:        tenantID,
		ID:              subscriptionID,
		EncryptedSecret: encrypted,
	})
	if err != nil {
		return CreatedSubscription{}, s.mapError(err)
	}
	s.recordActivity(ctx, ActivityEntry{
		TenantID: tenantID,
		Actor:    "dispatch",
		Action:   "subscription.secret_rotated",
		Object:   subscriptionID,
		Status:   ActivityStatusOK,
	})
	return CreatedSubscription{Subscription: subscription, Secret: secret}, nil
}

// GetSubscription loads one subscription scoped to its tenant.
func (s *Service) GetSubscription(ctx context.Context, tenantID, subscriptionID string) (Subscription, error) {
	if s == nil {
		return Subscription{}, fmt.Errorf("core: service is nil")
	}
	if s.subscriptionStore == nil {
		return Subscription{}, s.mapError(fmt.Errorf("core: subscription store not configured"))
	}
	subscription, err := s.subscriptionStore.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(subscriptionID))
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return subscription, nil
}

// ListSubscriptions returns every subscription for a tenant.
func (s *Service) ListSubscriptions(ctx context.Context, tenantID string) ([]Subscription, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	if s.subscriptionStore == nil {
		return nil, s.mapError(fmt.Errorf("core: subscription store not configured"))
	}
	subscriptions, err := s.subscriptionStore.List(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return subscriptions, nil
}

func (s *Service) validateDestination(ctx context.Context, rawURL string) error {
	if s == nil || s.urlValidator == nil {
		return fmt.Errorf("core: url validator not configured")
	}
	return s.urlValidator.Validate(ctx, rawURL)
}

func generateSigningSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: secret generation failed: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
