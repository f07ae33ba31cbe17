package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EnqueueJob creates a queued job row. RunAfter defaults to now, MaxAttempts
// to the configured queue budget.
func (s *Service) EnqueueJob(ctx context.Context, in EnqueueJobInput) (job Job, err error) {
	if s == nil {
		return Job{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "job_enqueue", err, map[string]any{
			"tenant_id": in.TenantID,
			"job_type":  in.Type,
		})
	}()

	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Type = strings.TrimSpace(in.Type)
	if in.TenantID == "" {
		return Job{}, s.mapError(fmt.Errorf("core: tenant id required"))
	}
	if in.Type == "" {
		return Job{}, s.mapError(fmt.Errorf("core: job type required"))
	}
	if in.MaxAttempts <= 0 {
		in.MaxAttempts = s.config.Queue.MaxAttempts
	}
	if in.RunAfter.IsZero() {
		in.RunAfter = startedAt
	}
	if s.jobStore == nil {
		return Job{}, s.mapError(fmt.Errorf("core: job store not configured"))
	}

	job, err = s.jobStore.Create(ctx, in)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	s.recordCounter(ctx, metricJobsEnqueued, 1, map[string]string{
		"tenant_id": job.TenantID,
		"job_type":  job.Type,
	})
	s.notifyEnqueuer(ctx, job)
	return job, nil
}

// notifyEnqueuer pushes a best-effort wake-up to the external job runtime.
// The durable row is the source of truth, so a push failure is only logged.
func (s *Service) notifyEnqueuer(ctx context.Context, job Job) {
	if s == nil || s.jobEnqueuer == nil {
		return
	}
	msg := &JobExecutionMessage{
		JobID:          job.ID,
		TenantID:       job.TenantID,
		Type:           job.Type,
		Parameters:     copyAnyMap(job.Payload),
		IdempotencyKey: job.ID,
	}
	if err := s.jobEnqueuer.Enqueue(ctx, msg); err != nil {
		s.logError(ctx, "job wakeup push failed", map[string]any{
			"tenant_id": job.TenantID,
			"job_id":    job.ID,
			"error":     err.Error(),
		})
	}
}

// AcquireJob claims one due job for workerID. ok=false means no eligible job
// or another worker won the claim; neither is an error.
func (s *Service) AcquireJob(ctx context.Context, tenantID, workerID string, types ...string) (Job, bool, error) {
	if s == nil {
		return Job{}, false, fmt.Errorf("core: service is nil")
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return Job{}, false, s.mapError(fmt.Errorf("core: worker id required"))
	}
	if s.jobStore == nil {
		return Job{}, false, s.mapError(fmt.Errorf("core: job store not configured"))
	}
	job, ok, err := s.jobStore.Acquire(ctx, AcquireJobInput{
		TenantID: strings.TrimSpace(tenantID),
		WorkerID: workerID,
		Types:    types,
		Now:      s.clock()(),
	})
	if err != nil {
		return Job{}, false, s.mapError(err)
	}
	return job, ok, nil
}

// CompleteJob marks an acquired job succeeded. ok=false means the lease was
// lost, the caller must treat its work as possibly duplicated elsewhere.
func (s *Service) CompleteJob(ctx context.Context, jobID, workerID string, result map[string]any) (bool, error) {
	return s.releaseJob(ctx, ReleaseJobInput{
		JobID:    jobID,
		WorkerID: workerID,
		Result:   result,
		Status:   JobStatusSucceeded,
	})
}

// FailJob records a failed attempt. While attempts remain the job goes back
// to queued with a backoff delay; otherwise it lands in failed.
func (s *Service) FailJob(ctx context.Context, tenantID, jobID, workerID string, cause string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: service is nil")
	}
	if s.jobStore == nil {
		return false, s.mapError(fmt.Errorf("core: job store not configured"))
	}
	job, err := s.jobStore.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(jobID))
	if err != nil {
		return false, s.mapError(err)
	}

	now := s.clock()()
	input := ReleaseJobInput{
		JobID:    jobID,
		WorkerID: workerID,
		Error:    strings.TrimSpace(cause),
		Status:   JobStatusFailed,
		Now:      now,
	}
	// Attempts was already incremented by the claim.
	if job.Attempts < job.MaxAttempts {
		retryAt := now.Add(s.queueBackoff.NextDelay(job.Attempts - 1))
		input.Status = JobStatusQueued
		input.RunAfter = &retryAt
	}
	return s.releaseJob(ctx, input)
}

func (s *Service) releaseJob(ctx context.Context, in ReleaseJobInput) (ok bool, err error) {
	if s == nil {
		return false, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "job_release", err, map[string]any{
			"job_id": in.JobID,
			"status": string(in.Status),
		})
	}()

	in.JobID = strings.TrimSpace(in.JobID)
	in.WorkerID = strings.TrimSpace(in.WorkerID)
	if in.JobID == "" {
		return false, s.mapError(fmt.Errorf("core: job id required"))
	}
	if in.WorkerID == "" {
		return false, s.mapError(fmt.Errorf("core: worker id required"))
	}
	if s.jobStore == nil {
		return false, s.mapError(fmt.Errorf("core: job store not configured"))
	}
	if in.Now.IsZero() {
		in.Now = startedAt
	}

	ok, err = s.jobStore.Release(ctx, in)
	if err != nil {
		return false, s.mapError(err)
	}
	if ok && (in.Status == JobStatusSucceeded || in.Status == JobStatusFailed) {
		s.recordCounter(ctx, metricJobsCompleted, 1, map[string]string{
			"status": string(in.Status),
		})
	}
	return ok, nil
}

// CancelJob cancels a queued job. Jobs already processing are left to their
// worker; ok=false covers both missing and non-cancellable rows.
func (s *Service) CancelJob(ctx context.Context, tenantID, jobID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: service is nil")
	}
	if s.jobStore == nil {
		return false, s.mapError(fmt.Errorf("core: job store not configured"))
	}
	ok, err := s.jobStore.Cancel(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(jobID), s.clock()())
	if err != nil {
		return false, s.mapError(err)
	}
	return ok, nil
}

// ReapStuckJobs requeues jobs whose worker disappeared mid-lease. A reaped
// job keeps its attempt count, so a crash loop still converges on failed.
// The scan is idempotent: a second pass over the same horizon finds nothing.
func (s *Service) ReapStuckJobs(ctx context.Context) (reaped int, err error) {
	if s == nil {
		return 0, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()()
	defer func() {
		s.observeOperation(ctx, startedAt, "job_reap", err, map[string]any{
			"reaped": reaped,
		})
	}()
	if s.jobStore == nil {
		return 0, s.mapError(fmt.Errorf("core: job store not configured"))
	}

	threshold := s.config.Queue.ReapThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	lockedBefore := startedAt.Add(-threshold)
	reaped, err = s.jobStore.ReapStuck(ctx, lockedBefore, "lease expired", startedAt)
	if err != nil {
		return 0, s.mapError(err)
	}
	if reaped > 0 {
		s.recordCounter(ctx, metricJobsReaped, int64(reaped), nil)
	}
	return reaped, nil
}

// GetJob loads a job scoped to its tenant.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (Job, error) {
	if s == nil {
		return Job{}, fmt.Errorf("core: service is nil")
	}
	if s.jobStore == nil {
		return Job{}, s.mapError(fmt.Errorf("core: job store not configured"))
	}
	job, err := s.jobStore.Get(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(jobID))
	if err != nil {
		return Job{}, s.mapError(err)
	}
	return job, nil
}
