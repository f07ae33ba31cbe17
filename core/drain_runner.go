package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DrainRunner consumes delivery trigger messages from a job transport and
// executes the corresponding durable job. The transport is a wake-up channel
// only; the job row decides whether any work actually happens, so duplicate
// or stale messages resolve to lost claims, not double drains.
type DrainRunner struct {
	service  *Service
	dequeuer JobDequeuer
	workerID string
	hook     JobWorkerHook
	// idlePause spaces out polls when the transport has nothing to hand us.
	idlePause time.Duration
}

type DrainRunnerOption func(*DrainRunner)

func WithDrainWorkerID(workerID string) DrainRunnerOption {
	return func(r *DrainRunner) {
		if trimmed := strings.TrimSpace(workerID); trimmed != "" {
			r.workerID = trimmed
		}
	}
}

func WithDrainHook(hook JobWorkerHook) DrainRunnerOption {
	return func(r *DrainRunner) {
		r.hook = hook
	}
}

func WithDrainIdlePause(pause time.Duration) DrainRunnerOption {
	return func(r *DrainRunner) {
		if pause > 0 {
			r.idlePause = pause
		}
	}
}

func NewDrainRunner(service *Service, dequeuer JobDequeuer, opts ...DrainRunnerOption) (*DrainRunner, error) {
	if service == nil {
		return nil, fmt.Errorf("core: service is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("core: dequeuer is required")
	}
	runner := &DrainRunner{
		service:   service,
		dequeuer:  dequeuer,
		workerID:  "drain-runner",
		idlePause: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner, nil
}

// Run processes messages until ctx is cancelled.
func (r *DrainRunner) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("core: drain runner is nil")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := r.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.service.logError(ctx, "dequeue failed", map[string]any{"error": err.Error()})
			r.pause(ctx)
			continue
		}
		if delivery == nil {
			r.pause(ctx)
			continue
		}
		r.handle(ctx, delivery)
	}
}

func (r *DrainRunner) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.idlePause):
	}
}

func (r *DrainRunner) handle(ctx context.Context, delivery JobDelivery) {
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Ack(ctx)
		return
	}
	startedAt := time.Now().UTC()
	event := JobWorkerEvent{Message: msg, StartedAt: startedAt}
	r.hookOnStart(ctx, event)

	err := r.process(ctx, msg)
	event.Duration = time.Since(startedAt)
	event.Err = err

	if err != nil {
		r.hookOnFailure(ctx, event)
		_ = delivery.Nack(ctx, JobNackOptions{
			Requeue: true,
			Delay:   r.idlePause,
			Reason:  err.Error(),
		})
		return
	}
	r.hookOnSuccess(ctx, event)
	_ = delivery.Ack(ctx)
}

// process claims the durable job named by the message and runs it. A lost
// claim means another worker owns the row; the message is done either way.
func (r *DrainRunner) process(ctx context.Context, msg *JobExecutionMessage) error {
	if msg.Type != JobTypeWebhookDeliver {
		r.service.logInfo(ctx, "skipping unknown job type", map[string]any{
			"job_type": msg.Type,
			"job_id":   msg.JobID,
		})
		return nil
	}

	job, ok, err := r.service.AcquireJob(ctx, msg.TenantID, r.workerID, JobTypeWebhookDeliver)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	stats, drainErr := r.service.DrainTenant(ctx, job.TenantID)
	if drainErr != nil {
		_, failErr := r.service.FailJob(ctx, job.TenantID, job.ID, r.workerID, drainErr.Error())
		if failErr != nil {
			return failErr
		}
		return drainErr
	}

	_, err = r.service.CompleteJob(ctx, job.ID, r.workerID, map[string]any{
		"claimed":   stats.Claimed,
		"delivered": stats.Delivered,
		"retried":   stats.Retried,
		"dead":      stats.Dead,
	})
	return err
}

func (r *DrainRunner) hookOnStart(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnStart(ctx, event)
	}
}

func (r *DrainRunner) hookOnSuccess(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnSuccess(ctx, event)
	}
}

func (r *DrainRunner) hookOnFailure(ctx context.Context, event JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnFailure(ctx, event)
	}
}
