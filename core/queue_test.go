package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnqueueJob_DefaultsAndWakeup(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	job, err := f.service.EnqueueJob(ctx, EnqueueJobInput{
		TenantID: "tenant_a",
		Type:     "report.generate",
		Payload:  map[string]any{"report_id": "rep_1"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != JobStatusQueued {
		t.Fatalf("expected queued status, got %q", job.Status)
	}
	if job.MaxAttempts != 5 {
		t.Fatalf("expected default max attempts 5, got %d", job.MaxAttempts)
	}
	if !job.RunAfter.Equal(f.clock.Now()) {
		t.Fatalf("expected run_after to default to now")
	}

	if len(f.enqueuer.messages) != 1 {
		t.Fatalf("expected one wakeup message, got %d", len(f.enqueuer.messages))
	}
	msg := f.enqueuer.messages[0]
	if msg.JobID != job.ID || msg.TenantID != "tenant_a" || msg.Type != "report.generate" {
		t.Fatalf("unexpected wakeup message: %#v", msg)
	}
	if msg.IdempotencyKey != job.ID {
		t.Fatalf("expected job id as idempotency key, got %q", msg.IdempotencyKey)
	}
}

func TestEnqueueJob_WakeupFailureDoesNotFailEnqueue(t *testing.T) {
	f := newTestFixture(t)
	f.enqueuer.err = context.DeadlineExceeded

	job, err := f.service.EnqueueJob(context.Background(), EnqueueJobInput{
		TenantID: "tenant_a",
		Type:     "report.generate",
	})
	if err != nil {
		t.Fatalf("expected enqueue to survive a wakeup push failure: %v", err)
	}
	if _, err := f.service.GetJob(context.Background(), "tenant_a", job.ID); err != nil {
		t.Fatalf("expected durable row despite wakeup failure: %v", err)
	}
}

func TestEnqueueJob_Validation(t *testing.T) {
	f := newTestFixture(t)
	if _, err := f.service.EnqueueJob(context.Background(), EnqueueJobInput{Type: "x"}); err == nil {
		t.Fatalf("expected missing tenant to fail")
	}
	if _, err := f.service.EnqueueJob(context.Background(), EnqueueJobInput{TenantID: "tenant_a"}); err == nil {
		t.Fatalf("expected missing type to fail")
	}
}

func TestAcquireJob_SingleWinner(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "work"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			_, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-"+string(rune('a'+worker)))
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				wins <- "won"
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestAcquireJob_RespectsRunAfterAndType(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	future := f.clock.Now().Add(time.Hour)
	if _, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "later", RunAfter: future}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-1"); err != nil || ok {
		t.Fatalf("expected future job to be ineligible, ok=%v err=%v", ok, err)
	}

	if _, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "now"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-1", "other.type"); err != nil || ok {
		t.Fatalf("expected type filter to exclude job, ok=%v err=%v", ok, err)
	}
	job, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-1", "now")
	if err != nil || !ok {
		t.Fatalf("expected due job claim, ok=%v err=%v", ok, err)
	}
	if job.Attempts != 1 || job.Status != JobStatusProcessing {
		t.Fatalf("expected claimed job attempts=1 processing, got %d %q", job.Attempts, job.Status)
	}
}

func TestCompleteJob_LeaseGuard(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "work"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-1")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// A worker that never held the lease settles nothing.
	ok, err = f.service.CompleteJob(ctx, job.ID, "worker-2", nil)
	if err != nil {
		t.Fatalf("complete with wrong worker: %v", err)
	}
	if ok {
		t.Fatalf("expected lease guard to reject foreign worker")
	}

	ok, err = f.service.CompleteJob(ctx, job.ID, "worker-1", map[string]any{"rows": 3})
	if err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	stored, err := f.service.GetJob(ctx, "tenant_a", job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", stored.Status)
	}
	if stored.LockedBy != "" || stored.LockedAt != nil {
		t.Fatalf("expected lease cleared")
	}
}

func TestFailJob_RequeuesWithBackoffThenFails(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "work", MaxAttempts: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-1")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	now := f.clock.Now()
	ok, err = f.service.FailJob(ctx, "tenant_a", job.ID, "worker-1", "boom")
	if err != nil || !ok {
		t.Fatalf("fail: ok=%v err=%v", ok, err)
	}
	stored, err := f.service.GetJob(ctx, "tenant_a", job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != JobStatusQueued {
		t.Fatalf("expected requeue, got %q", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected attempt count preserved, got %d", stored.Attempts)
	}
	// First retry backs off by the initial delay plus at most 20% jitter.
	minRetry := now.Add(2 * time.Second)
	maxRetry := now.Add(2*time.Second + 400*time.Millisecond)
	if stored.RunAfter.Before(minRetry) || stored.RunAfter.After(maxRetry) {
		t.Fatalf("expected run_after in [%s, %s], got %s", minRetry, maxRetry, stored.RunAfter)
	}

	// Second failure exhausts the budget.
	f.clock.Advance(time.Minute)
	_, ok, err = f.service.AcquireJob(ctx, "tenant_a", "worker-1")
	if err != nil || !ok {
		t.Fatalf("reacquire: ok=%v err=%v", ok, err)
	}
	ok, err = f.service.FailJob(ctx, "tenant_a", job.ID, "worker-1", "boom again")
	if err != nil || !ok {
		t.Fatalf("fail: ok=%v err=%v", ok, err)
	}
	stored, err = f.service.GetJob(ctx, "tenant_a", job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != JobStatusFailed {
		t.Fatalf("expected failed after budget exhausted, got %q", stored.Status)
	}
	if stored.ErrorMessage != "boom again" {
		t.Fatalf("expected final cause recorded, got %q", stored.ErrorMessage)
	}
}

func TestCancelJob_OnlyQueued(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	job, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "work"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ok, err := f.service.CancelJob(ctx, "tenant_a", job.ID)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	other, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "work"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-1"); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	ok, err = f.service.CancelJob(ctx, "tenant_a", other.ID)
	if err != nil {
		t.Fatalf("cancel processing: %v", err)
	}
	if ok {
		t.Fatalf("expected processing job to be uncancellable")
	}
}

func TestReapStuckJobs_RequeuesAndIsIdempotent(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	if _, err := f.service.EnqueueJob(ctx, EnqueueJobInput{TenantID: "tenant_a", Type: "work"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, ok, err := f.service.AcquireJob(ctx, "tenant_a", "worker-crashed")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// Inside the lease horizon nothing is reaped.
	reaped, err := f.service.ReapStuckJobs(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 0 {
		t.Fatalf("expected live lease untouched, reaped %d", reaped)
	}

	f.clock.Advance(11 * time.Minute)
	reaped, err = f.service.ReapStuckJobs(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected one reaped job, got %d", reaped)
	}
	stored, err := f.service.GetJob(ctx, "tenant_a", job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != JobStatusQueued || stored.LockedBy != "" {
		t.Fatalf("expected requeued unlocked job, got %q locked_by=%q", stored.Status, stored.LockedBy)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected attempts preserved through reap, got %d", stored.Attempts)
	}

	// A second pass over the same horizon finds nothing.
	reaped, err = f.service.ReapStuckJobs(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 0 {
		t.Fatalf("expected idempotent reap, got %d", reaped)
	}
}
