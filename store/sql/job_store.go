package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-dispatch/core"
)

type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{db: db, repo: repo}, nil
}

func (s *JobStore) Create(ctx context.Context, in core.EnqueueJobInput) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.Type = strings.TrimSpace(in.Type)
	if in.TenantID == "" {
		return core.Job{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if in.Type == "" {
		return core.Job{}, fmt.Errorf("sqlstore: job type is required")
	}
	if in.MaxAttempts <= 0 {
		return core.Job{}, fmt.Errorf("sqlstore: max attempts must be positive")
	}

	now := time.Now().UTC()
	runAfter := in.RunAfter.UTC()
	if runAfter.IsZero() {
		runAfter = now
	}
	payload := copyAnyMap(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	record := &jobRecord{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		Type:        in.Type,
		Status:      string(core.JobStatusQueued),
		Priority:    in.Priority,
		RunAfter:    runAfter,
		Attempts:    0,
		MaxAttempts: in.MaxAttempts,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Job{}, err
	}
	return created.toDomain(), nil
}

// Acquire claims one due job in a single statement. Concurrent callers
// racing for the same row are serialized by the inner status recheck, so at
// most one of them sees the row come back.
func (s *JobStore) Acquire(ctx context.Context, in core.AcquireJobInput) (core.Job, bool, error) {
	if s == nil || s.db == nil {
		return core.Job{}, false, fmt.Errorf("sqlstore: job store is not configured")
	}
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.WorkerID = strings.TrimSpace(in.WorkerID)
	if in.TenantID == "" {
		return core.Job{}, false, fmt.Errorf("sqlstore: tenant id is required")
	}
	if in.WorkerID == "" {
		return core.Job{}, false, fmt.Errorf("sqlstore: worker id is required")
	}
	now := in.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	types := make([]string, 0, len(in.Types))
	for _, jobType := range in.Types {
		if trimmed := strings.TrimSpace(jobType); trimmed != "" {
			types = append(types, trimmed)
		}
	}

	typeFilter := ""
	args := []any{
		string(core.JobStatusQueued),
		in.TenantID,
		now,
	}
	if len(types) > 0 {
		typeFilter = "\t  AND type IN (?)\n"
		args = append(args, bun.In(types))
	}
	args = append(args,
		string(core.JobStatusProcessing),
		now,
		in.WorkerID,
		now,
		string(core.JobStatusQueued),
	)

	query := `
WITH claimed AS (
	SELECT id
	FROM dispatch_jobs
	WHERE status = ?
	  AND tenant_id = ?
	  AND run_after <= ?
` + typeFilter + `	ORDER BY priority DESC, run_after ASC, created_at ASC
	LIMIT 1
)
UPDATE dispatch_jobs
SET status = ?,
	locked_at = ?,
	locked_by = ?,
	attempts = attempts + 1,
	updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status = ?
RETURNING
	id,
	tenant_id,
	type,
	status,
	priority,
	run_after,
	attempts,
	max_attempts,
	locked_at,
	locked_by,
	payload,
	result,
	error_message,
	created_at,
	updated_at
`

	var records []jobRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(query, args...).Scan(ctx, &records)
	})
	if err != nil {
		return core.Job{}, false, err
	}
	if len(records) == 0 {
		return core.Job{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

// Release settles an acquired job. The locked_by/status guard makes a lost
// lease a silent no-op instead of a cross-worker overwrite.
func (s *JobStore) Release(ctx context.Context, in core.ReleaseJobInput) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	in.JobID = strings.TrimSpace(in.JobID)
	in.WorkerID = strings.TrimSpace(in.WorkerID)
	if in.JobID == "" || in.WorkerID == "" {
		return false, fmt.Errorf("sqlstore: job id and worker id are required")
	}
	switch in.Status {
	case core.JobStatusSucceeded, core.JobStatusFailed, core.JobStatusQueued:
	default:
		return false, fmt.Errorf("sqlstore: release status %q is not allowed", in.Status)
	}
	now := in.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	update := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(in.Status)).
		Set("locked_at = NULL").
		Set("locked_by = ?", "").
		Set("error_message = ?", strings.TrimSpace(in.Error)).
		Set("updated_at = ?", now).
		Where("id = ?", in.JobID).
		Where("locked_by = ?", in.WorkerID).
		Where("status = ?", string(core.JobStatusProcessing))
	if in.Result != nil {
		update = update.Set("result = ?", copyAnyMap(in.Result))
	}
	if in.RunAfter != nil {
		update = update.Set("run_after = ?", in.RunAfter.UTC())
	}

	res, err := update.Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

func (s *JobStore) Cancel(ctx context.Context, tenantID, jobID string, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	jobID = strings.TrimSpace(jobID)
	if tenantID == "" || jobID == "" {
		return false, fmt.Errorf("sqlstore: tenant id and job id are required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(core.JobStatusCancelled)).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", jobID).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", string(core.JobStatusQueued)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return rowsAffected(res) > 0, nil
}

// ReapStuck requeues jobs whose lease outlived its worker. Attempts are left
// as incremented by the claim, so repeated crashes still consume the budget.
func (s *JobStore) ReapStuck(ctx context.Context, lockedBefore time.Time, note string, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(core.JobStatusQueued)).
		Set("locked_at = NULL").
		Set("locked_by = ?", "").
		Set("error_message = ?", strings.TrimSpace(note)).
		Set("updated_at = ?", now.UTC()).
		Where("status = ?", string(core.JobStatusProcessing)).
		Where("locked_at IS NOT NULL").
		Where("locked_at <= ?", lockedBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return int(rowsAffected(res)), nil
}

func (s *JobStore) Get(ctx context.Context, tenantID, jobID string) (core.Job, error) {
	if s == nil || s.repo == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return core.Job{}, fmt.Errorf("sqlstore: job id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", jobID),
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Job{}, err
	}
	if len(records) == 0 {
		return core.Job{}, core.ErrJobNotFound
	}
	return records[0].toDomain(), nil
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return affected
}

var _ core.JobStore = (*JobStore)(nil)
