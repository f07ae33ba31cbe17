package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// NewDeliveryHTTPClient builds the outbound webhook client. Redirects are
// surfaced as responses instead of followed, so a destination cannot bounce
// the worker to an address the guard never saw.
func NewDeliveryHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// DrainTenant claims and delivers due outbox entries for one tenant until
// none remain due. Lease losses are skipped silently; at-least-once delivery
// means a subscriber may see the same event id twice, never zero times.
func (s *Service) DrainTenant(ctx context.Context, tenantID string) (stats DrainStats, err error) {
	if s == nil {
		return DrainStats{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "delivery_drain", err, map[string]any{
			"tenant_id": tenantID,
			"claimed":   stats.Claimed,
			"delivered": stats.Delivered,
			"retried":   stats.Retried,
			"dead":      stats.Dead,
		})
	}()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return DrainStats{}, s.mapError(fmt.Errorf("core: tenant id required"))
	}
	if s.outboxStore == nil {
		return DrainStats{}, s.mapError(fmt.Errorf("core: outbox store not configured"))
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		claimed, ok, claimErr := s.outboxStore.ClaimDue(ctx, tenantID, s.clock()())
		if claimErr != nil {
			return stats, s.mapError(claimErr)
		}
		if !ok {
			return stats, nil
		}
		stats.Claimed++

		outcome := s.deliverOne(ctx, claimed)
		switch outcome {
		case deliveryOutcomeDelivered:
			stats.Delivered++
		case deliveryOutcomeRetried:
			stats.Retried++
		case deliveryOutcomeDead:
			stats.Dead++
		}
	}
}

type deliveryOutcome int

const (
	deliveryOutcomeSkipped deliveryOutcome = iota
	deliveryOutcomeDelivered
	deliveryOutcomeRetried
	deliveryOutcomeDead
)

// deliverOne runs a single attempt against a claimed entry and settles its
// next state. Every attempt leaves an audit row, including the ones that
// never reached the network.
func (s *Service) deliverOne(ctx context.Context, claimed ClaimedDelivery) deliveryOutcome {
	entry := claimed.Entry
	subscription := claimed.Subscription
	now := s.clock()()

	secret, err := s.decryptSecret(ctx, subscription)
	if err != nil {
		// An undecryptable secret never self-heals, retrying would only
		// burn the attempt budget.
		s.appendAttempt(ctx, entry, subscription.URL, nil, nil, 0, nil, 0, err)
		return s.settleDead(ctx, entry, fmt.Sprintf("secret unavailable: %v", err))
	}

	if err := s.validateDestination(ctx, subscription.URL); err != nil {
		s.appendAttempt(ctx, entry, subscription.URL, nil, nil, 0, nil, 0, err)
		return s.settleDead(ctx, entry, err.Error())
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		s.appendAttempt(ctx, entry, subscription.URL, nil, nil, 0, nil, 0, err)
		return s.settleDead(ctx, entry, fmt.Sprintf("payload marshal: %v", err))
	}

	headers, err := s.signer.Headers(secret, entry.EventID, now, payload)
	if err != nil {
		s.appendAttempt(ctx, entry, subscription.URL, nil, payload, 0, nil, 0, err)
		return s.settleDead(ctx, entry, fmt.Sprintf("signing failed: %v", err))
	}

	status, body, elapsed, sendErr := s.sendWebhook(ctx, subscription.URL, headers, payload)
	success := sendErr == nil && status >= 200 && status < 300
	if sendErr == nil && !success {
		if status >= 300 && status < 400 {
			sendErr = fmt.Errorf("core: redirect not allowed")
		} else {
			sendErr = fmt.Errorf("core: unexpected status %d", status)
		}
	}

	s.appendAttempt(ctx, entry, subscription.URL, headers, payload, status, body, elapsed, sendErr)
	s.recordCounter(ctx, metricDeliveryAttempts, 1, map[string]string{
		"tenant_id": entry.TenantID,
		"status":    deliveryStatusTag(success),
	})
	s.recordHistogram(ctx, metricDeliveryDuration, float64(elapsed.Milliseconds()), map[string]string{
		"tenant_id": entry.TenantID,
	})

	if success {
		ok, markErr := s.outboxStore.MarkDelivered(ctx, entry.TenantID, entry.ID, s.clock()())
		if markErr != nil {
			s.logError(ctx, "mark delivered failed", map[string]any{
				"tenant_id": entry.TenantID,
				"outbox_id": entry.ID,
				"error":     markErr.Error(),
			})
			return deliveryOutcomeSkipped
		}
		if !ok {
			return deliveryOutcomeSkipped
		}
		return deliveryOutcomeDelivered
	}

	if entry.Attempts >= s.deliveryMaxAttempts() {
		return s.settleDead(ctx, entry, sendErr.Error())
	}
	return s.settleRetry(ctx, entry, sendErr.Error())
}

func (s *Service) deliveryMaxAttempts() int {
	if s == nil || s.config.Delivery.MaxAttempts <= 0 {
		return 5
	}
	return s.config.Delivery.MaxAttempts
}

func (s *Service) settleRetry(ctx context.Context, entry OutboxEntry, cause string) deliveryOutcome {
	now := s.clock()()
	nextRetryAt := now.Add(s.deliveryBackoff.NextDelay(entry.Attempts - 1))
	ok, err := s.outboxStore.MarkRetry(ctx, entry.TenantID, entry.ID, cause, nextRetryAt, now)
	if err != nil {
		s.logError(ctx, "mark retry failed", map[string]any{
			"tenant_id": entry.TenantID,
			"outbox_id": entry.ID,
			"error":     err.Error(),
		})
		return deliveryOutcomeSkipped
	}
	if !ok {
		return deliveryOutcomeSkipped
	}
	return deliveryOutcomeRetried
}

func (s *Service) settleDead(ctx context.Context, entry OutboxEntry, cause string) deliveryOutcome {
	now := s.clock()()
	ok, err := s.outboxStore.MarkDead(ctx, entry.TenantID, entry.ID, cause, now)
	if err != nil {
		s.logError(ctx, "mark dead letter failed", map[string]any{
			"tenant_id": entry.TenantID,
			"outbox_id": entry.ID,
			"error":     err.Error(),
		})
		return deliveryOutcomeSkipped
	}
	if !ok {
		return deliveryOutcomeSkipped
	}
	s.recordCounter(ctx, metricDeadLetters, 1, map[string]string{
		"tenant_id": entry.TenantID,
	})
	s.recordActivity(ctx, ActivityEntry{
		TenantID: entry.TenantID,
		Actor:    "dispatch",
		Action:   "delivery.dead_letter",
		Object:   entry.ID,
		Status:   ActivityStatusError,
		Metadata: map[string]any{
			"subscription_id": entry.SubscriptionID,
			"event_id":        entry.EventID,
			"cause":           cause,
		},
	})
	return deliveryOutcomeDead
}

func (s *Service) sendWebhook(ctx context.Context, url string, headers map[string]string, payload []byte) (int, []byte, time.Duration, error) {
	client := s.httpClient
	if client == nil {
		client = NewDeliveryHTTPClient(s.config.Delivery.Timeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, 0, fmt.Errorf("core: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	startedAt := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(startedAt)
	if err != nil {
		return 0, nil, elapsed, fmt.Errorf("core: webhook post: %w", err)
	}
	defer resp.Body.Close()

	limit := s.config.Delivery.MaxResponseBytes
	if limit <= 0 {
		limit = 4096
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(limit)))
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body, elapsed, nil
}

func (s *Service) appendAttempt(
	ctx context.Context,
	entry OutboxEntry,
	url string,
	headers map[string]string,
	payload []byte,
	status int,
	body []byte,
	elapsed time.Duration,
	attemptErr error,
) {
	if s == nil || s.deliveryStore == nil {
		return
	}
	attempt := DeliveryAttempt{
		TenantID:       entry.TenantID,
		OutboxID:       entry.ID,
		Attempt:        entry.Attempts,
		RequestURL:     url,
		RequestHeaders: redactDeliveryHeaders(headers),
		RequestBody:    payload,
		ResponseStatus: status,
		ResponseBody:   body,
		Duration:       elapsed,
		Success:        attemptErr == nil && status >= 200 && status < 300,
		CreatedAt:      s.clock()(),
	}
	if attemptErr != nil {
		attempt.ErrorMessage = attemptErr.Error()
	}
	if err := s.deliveryStore.Append(ctx, attempt); err != nil {
		s.logError(ctx, "delivery audit append failed", map[string]any{
			"tenant_id": entry.TenantID,
			"outbox_id": entry.ID,
			"error":     err.Error(),
		})
	}
}

// redactDeliveryHeaders keeps the audit row useful without persisting a
// recomputable signature next to the payload it covers.
func redactDeliveryHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if strings.EqualFold(key, HeaderWebhookSignature) {
			out[key] = "sha256=[redacted]"
			continue
		}
		out[key] = value
	}
	return out
}

func (s *Service) decryptSecret(ctx context.Context, subscription Subscription) ([]byte, error) {
	if s == nil || s.secretProvider == nil {
		return nil, fmt.Errorf("core: secret provider not configured")
	}
	if len(subscription.EncryptedSecret) == 0 {
		return nil, fmt.Errorf("core: subscription has no signing secret")
	}
	secret, err := s.secretProvider.Decrypt(ctx, subscription.EncryptedSecret)
	if err != nil {
		return nil, err
	}
	return secret, nil
}

func deliveryStatusTag(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RetryDeadLetter moves a dead-lettered entry back to pending with a fresh
// attempt budget. The per-tenant limiter bounds how fast an operator can
// hammer a broken destination.
func (s *Service) RetryDeadLetter(ctx context.Context, tenantID, outboxID string) (ok bool, err error) {
	if s == nil {
		return false, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "delivery_manual_retry", err, map[string]any{
			"tenant_id": tenantID,
			"outbox_id": outboxID,
		})
	}()

	tenantID = strings.TrimSpace(tenantID)
	outboxID = strings.TrimSpace(outboxID)
	if tenantID == "" || outboxID == "" {
		return false, s.mapError(fmt.Errorf("core: tenant id and outbox id required"))
	}
	if s.outboxStore == nil {
		return false, s.mapError(fmt.Errorf("core: outbox store not configured"))
	}
	if s.retryLimiter != nil {
		if limitErr := s.retryLimiter.Allow(ctx, tenantID); limitErr != nil {
			return false, s.mapError(limitErr)
		}
	}

	ok, err = s.outboxStore.ResetDead(ctx, tenantID, outboxID, startedAt)
	if err != nil {
		return false, s.mapError(err)
	}
	if ok {
		s.recordCounter(ctx, metricManualRetries, 1, map[string]string{
			"tenant_id": tenantID,
		})
		s.recordActivity(ctx, ActivityEntry{
			TenantID: tenantID,
			Actor:    "dispatch",
			Action:   "delivery.manual_retry",
			Object:   outboxID,
			Status:   ActivityStatusOK,
		})
	}
	return ok, nil
}

// ListDeliveryAttempts returns the audit rows for one outbox entry, oldest
// first.
func (s *Service) ListDeliveryAttempts(ctx context.Context, tenantID, outboxID string) ([]DeliveryAttempt, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	if s.deliveryStore == nil {
		return nil, s.mapError(fmt.Errorf("core: delivery store not configured"))
	}
	attempts, err := s.deliveryStore.ListByOutbox(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(outboxID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return attempts, nil
}
