package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start.UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type failingSecretProvider struct{}

func (failingSecretProvider) Encrypt(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("test secret provider: encrypt unavailable")
}

func (failingSecretProvider) Decrypt(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("test secret provider: decrypt payload: key mismatch")
}

type allowAllValidator struct{}

func (allowAllValidator) Validate(context.Context, string) error { return nil }

type denyAllValidator struct{}

func (denyAllValidator) Validate(_ context.Context, rawURL string) error {
	return fmt.Errorf("core: url rejected: disallowed address %s", rawURL)
}

type memoryJobStore struct {
	mu   sync.Mutex
	next int
	jobs map[string]*Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[string]*Job{}}
}

func (s *memoryJobStore) Create(_ context.Context, in EnqueueJobInput) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	job := Job{
		ID:          fmt.Sprintf("job_%d", s.next),
		TenantID:    in.TenantID,
		Type:        in.Type,
		Status:      JobStatusQueued,
		Priority:    in.Priority,
		RunAfter:    in.RunAfter,
		MaxAttempts: in.MaxAttempts,
		Payload:     copyAnyMap(in.Payload),
		CreatedAt:   in.RunAfter,
		UpdatedAt:   in.RunAfter,
	}
	s.jobs[job.ID] = &job
	out := job
	return out, nil
}

func (s *memoryJobStore) Acquire(_ context.Context, in AcquireJobInput) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidate *Job
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		job := s.jobs[id]
		if job.TenantID != in.TenantID || job.Status != JobStatusQueued {
			continue
		}
		if job.RunAfter.After(in.Now) {
			continue
		}
		if len(in.Types) > 0 {
			matched := false
			for _, jobType := range in.Types {
				if job.Type == jobType {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if candidate == nil || job.Priority > candidate.Priority {
			candidate = job
		}
	}
	if candidate == nil {
		return Job{}, false, nil
	}

	candidate.Status = JobStatusProcessing
	candidate.Attempts++
	locked := in.Now
	candidate.LockedAt = &locked
	candidate.LockedBy = in.WorkerID
	candidate.UpdatedAt = in.Now
	out := *candidate
	return out, true, nil
}

func (s *memoryJobStore) Release(_ context.Context, in ReleaseJobInput) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[in.JobID]
	if !ok || job.Status != JobStatusProcessing || job.LockedBy != in.WorkerID {
		return false, nil
	}
	job.Status = in.Status
	job.LockedAt = nil
	job.LockedBy = ""
	job.ErrorMessage = in.Error
	if in.Result != nil {
		job.Result = copyAnyMap(in.Result)
	}
	if in.RunAfter != nil {
		job.RunAfter = *in.RunAfter
	}
	job.UpdatedAt = in.Now
	return true, nil
}

func (s *memoryJobStore) Cancel(_ context.Context, tenantID, jobID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.TenantID != tenantID || job.Status != JobStatusQueued {
		return false, nil
	}
	job.Status = JobStatusCancelled
	job.UpdatedAt = now
	return true, nil
}

func (s *memoryJobStore) ReapStuck(_ context.Context, lockedBefore time.Time, note string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status != JobStatusProcessing || job.LockedAt == nil {
			continue
		}
		if job.LockedAt.After(lockedBefore) {
			continue
		}
		job.Status = JobStatusQueued
		job.LockedAt = nil
		job.LockedBy = ""
		job.ErrorMessage = note
		job.UpdatedAt = now
		count++
	}
	return count, nil
}

func (s *memoryJobStore) Get(_ context.Context, tenantID, jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.TenantID != tenantID {
		return Job{}, ErrJobNotFound
	}
	out := *job
	return out, nil
}

type memorySubscriptionStore struct {
	mu            sync.Mutex
	next          int
	subscriptions map[string]*Subscription
}

func newMemorySubscriptionStore() *memorySubscriptionStore {
	return &memorySubscriptionStore{subscriptions: map[string]*Subscription{}}
}

func (s *memorySubscriptionStore) Create(_ context.Context, in CreateSubscriptionInput) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	subscription := Subscription{
		ID:              fmt.Sprintf("sub_%d", s.next),
		TenantID:        in.TenantID,
		Name:            in.Name,
		URL:             in.URL,
		EventTypes:      append([]EventType(nil), in.EventTypes...),
		IsActive:        in.IsActive,
		EncryptedSecret: append([]byte(nil), in.EncryptedSecret...),
	}
	s.subscriptions[subscription.ID] = &subscription
	out := subscription
	return out, nil
}

func (s *memorySubscriptionStore) Update(_ context.Context, in UpdateSubscriptionInput) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.subscriptions[in.ID]
	if !ok || subscription.TenantID != in.TenantID {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if in.Name != nil {
		subscription.Name = *in.Name
	}
	if in.URL != nil {
		subscription.URL = *in.URL
	}
	if len(in.EventTypes) > 0 {
		subscription.EventTypes = append([]EventType(nil), in.EventTypes...)
	}
	if in.IsActive != nil {
		subscription.IsActive = *in.IsActive
	}
	if len(in.EncryptedSecret) > 0 {
		subscription.EncryptedSecret = append([]byte(nil), in.EncryptedSecret...)
	}
	out := *subscription
	return out, nil
}

func (s *memorySubscriptionStore) Get(_ context.Context, tenantID, id string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.subscriptions[id]
	if !ok || subscription.TenantID != tenantID {
		return Subscription{}, ErrSubscriptionNotFound
	}
	out := *subscription
	return out, nil
}

func (s *memorySubscriptionStore) List(_ context.Context, tenantID string) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0)
	for _, id := range s.sortedIDs() {
		subscription := s.subscriptions[id]
		if subscription.TenantID == tenantID {
			out = append(out, *subscription)
		}
	}
	return out, nil
}

func (s *memorySubscriptionStore) ListActiveByEvent(_ context.Context, tenantID string, eventType EventType) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Subscription, 0)
	for _, id := range s.sortedIDs() {
		subscription := s.subscriptions[id]
		if subscription.TenantID == tenantID && subscription.Matches(eventType) {
			out = append(out, *subscription)
		}
	}
	return out, nil
}

func (s *memorySubscriptionStore) sortedIDs() []string {
	ids := make([]string, 0, len(s.subscriptions))
	for id := range s.subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type memoryOutboxStore struct {
	mu            sync.Mutex
	next          int
	entries       map[string]*OutboxEntry
	subscriptions *memorySubscriptionStore
	jobs          *memoryJobStore
}

func newMemoryOutboxStore(subscriptions *memorySubscriptionStore, jobs *memoryJobStore) *memoryOutboxStore {
	return &memoryOutboxStore{
		entries:       map[string]*OutboxEntry{},
		subscriptions: subscriptions,
		jobs:          jobs,
	}
}

func (s *memoryOutboxStore) FanOut(ctx context.Context, in FanOutInput) (FanOutResult, error) {
	matching, err := s.subscriptions.ListActiveByEvent(ctx, in.TenantID, in.EventType)
	if err != nil {
		return FanOutResult{}, err
	}

	s.mu.Lock()
	s.next++
	eventID := fmt.Sprintf("evt_%d", s.next)
	envelope := EventEnvelope{
		ID:        eventID,
		Type:      in.EventType,
		TenantID:  in.TenantID,
		CreatedAt: in.Now,
		Data:      copyAnyMap(in.Data),
	}
	result := FanOutResult{Entries: make([]OutboxEntry, 0, len(matching))}
	for _, subscription := range matching {
		s.next++
		entry := OutboxEntry{
			ID:             fmt.Sprintf("out_%d", s.next),
			TenantID:       in.TenantID,
			SubscriptionID: subscription.ID,
			EventType:      in.EventType,
			EventID:        eventID,
			Payload:        envelope.ToMap(),
			Status:         OutboxStatusPending,
			CreatedAt:      in.Now,
		}
		s.entries[entry.ID] = &entry
		result.Entries = append(result.Entries, entry)
	}
	s.mu.Unlock()

	if len(result.Entries) == 0 {
		return result, nil
	}

	maxAttempts := in.TriggerMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	trigger, err := s.jobs.Create(ctx, EnqueueJobInput{
		TenantID:    in.TenantID,
		Type:        JobTypeWebhookDeliver,
		Payload:     map[string]any{"event_id": eventID, "event_type": string(in.EventType)},
		RunAfter:    in.Now,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return FanOutResult{}, err
	}
	result.TriggerJob = &trigger
	return result, nil
}

func (s *memoryOutboxStore) ClaimDue(ctx context.Context, tenantID string, now time.Time) (ClaimedDelivery, bool, error) {
	s.mu.Lock()
	var candidate *OutboxEntry
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := s.entries[id]
		if entry.TenantID != tenantID || entry.Status != OutboxStatusPending {
			continue
		}
		if entry.NextRetryAt != nil && entry.NextRetryAt.After(now) {
			continue
		}
		candidate = entry
		break
	}
	if candidate == nil {
		s.mu.Unlock()
		return ClaimedDelivery{}, false, nil
	}
	candidate.Status = OutboxStatusProcessing
	candidate.Attempts++
	attemptAt := now
	candidate.LastAttemptAt = &attemptAt
	out := *candidate
	subscriptionID := candidate.SubscriptionID
	s.mu.Unlock()

	subscription, err := s.subscriptions.Get(ctx, tenantID, subscriptionID)
	if err != nil {
		return ClaimedDelivery{}, false, fmt.Errorf("claimed entry subscription missing: %w", err)
	}
	return ClaimedDelivery{Entry: out, Subscription: subscription}, true, nil
}

func (s *memoryOutboxStore) MarkDelivered(_ context.Context, tenantID, outboxID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[outboxID]
	if !ok || entry.TenantID != tenantID || entry.Status != OutboxStatusProcessing {
		return false, nil
	}
	entry.Status = OutboxStatusDelivered
	delivered := now
	entry.DeliveredAt = &delivered
	entry.NextRetryAt = nil
	entry.LastError = ""
	return true, nil
}

func (s *memoryOutboxStore) MarkRetry(_ context.Context, tenantID, outboxID, cause string, nextRetryAt, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[outboxID]
	if !ok || entry.TenantID != tenantID || entry.Status != OutboxStatusProcessing {
		return false, nil
	}
	entry.Status = OutboxStatusPending
	retryAt := nextRetryAt
	entry.NextRetryAt = &retryAt
	entry.LastError = cause
	return true, nil
}

func (s *memoryOutboxStore) MarkDead(_ context.Context, tenantID, outboxID, cause string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[outboxID]
	if !ok || entry.TenantID != tenantID || entry.Status != OutboxStatusProcessing {
		return false, nil
	}
	entry.Status = OutboxStatusDeadLetter
	entry.NextRetryAt = nil
	entry.LastError = cause
	return true, nil
}

func (s *memoryOutboxStore) ResetDead(_ context.Context, tenantID, outboxID string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[outboxID]
	if !ok || entry.TenantID != tenantID || entry.Status != OutboxStatusDeadLetter {
		return false, nil
	}
	entry.Status = OutboxStatusPending
	entry.Attempts = 0
	entry.NextRetryAt = nil
	entry.LastError = ""
	return true, nil
}

func (s *memoryOutboxStore) Get(_ context.Context, tenantID, outboxID string) (OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[outboxID]
	if !ok || entry.TenantID != tenantID {
		return OutboxEntry{}, ErrOutboxEntryNotFound
	}
	out := *entry
	return out, nil
}

type memoryDeliveryStore struct {
	mu       sync.Mutex
	next     int
	attempts []DeliveryAttempt
}

func newMemoryDeliveryStore() *memoryDeliveryStore {
	return &memoryDeliveryStore{}
}

func (s *memoryDeliveryStore) Append(_ context.Context, attempt DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	attempt.ID = fmt.Sprintf("att_%d", s.next)
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *memoryDeliveryStore) ListByOutbox(_ context.Context, tenantID, outboxID string) ([]DeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeliveryAttempt, 0)
	for _, attempt := range s.attempts {
		if attempt.TenantID == tenantID && attempt.OutboxID == outboxID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

type memoryActivitySink struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *memoryActivitySink) Record(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryActivitySink) byAction(action string) []ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActivityEntry, 0)
	for _, entry := range s.entries {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

type stubEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (s *stubEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

type testFixture struct {
	service       *Service
	clock         *testClock
	jobs          *memoryJobStore
	subscriptions *memorySubscriptionStore
	outbox        *memoryOutboxStore
	deliveries    *memoryDeliveryStore
	activity      *memoryActivitySink
	enqueuer      *stubEnqueuer
}

func newTestFixture(t *testing.T, opts ...Option) *testFixture {
	t.Helper()

	clock := newTestClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	jobs := newMemoryJobStore()
	subscriptions := newMemorySubscriptionStore()
	outbox := newMemoryOutboxStore(subscriptions, jobs)
	deliveries := newMemoryDeliveryStore()
	activity := &memoryActivitySink{}
	enqueuer := &stubEnqueuer{}

	base := []Option{
		WithJobStore(jobs),
		WithSubscriptionStore(subscriptions),
		WithOutboxStore(outbox),
		WithDeliveryStore(deliveries),
		WithActivitySink(activity),
		WithJobEnqueuer(enqueuer),
		WithSecretProvider(testSecretProvider{}),
		WithURLValidator(allowAllValidator{}),
		WithClock(clock.Now),
	}
	service, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testFixture{
		service:       service,
		clock:         clock,
		jobs:          jobs,
		subscriptions: subscriptions,
		outbox:        outbox,
		deliveries:    deliveries,
		activity:      activity,
		enqueuer:      enqueuer,
	}
}

func (f *testFixture) createSubscription(t *testing.T, tenantID, name, url string, eventTypes ...EventType) CreatedSubscription {
	t.Helper()
	created, err := f.service.CreateSubscription(context.Background(), CreateSubscriptionInput{
		TenantID:   tenantID,
		Name:       name,
		URL:        url,
		EventTypes: eventTypes,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("create subscription %s: %v", name, err)
	}
	return created
}
