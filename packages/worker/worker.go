// Package worker sequences one submission: normalize, credit check,
// validate, create job, harvest, debit, persist, finalize.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopharvest/packages/domain"
	"shopharvest/packages/metrics"
	"shopharvest/packages/normalizer"
	"shopharvest/packages/storeurl"
)

// Collaborator boundaries. The Postgres adapter in packages/db implements
// the first three; tests substitute in-memory fakes.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, amount int, jobID string) error
}

type JobStore interface {
	Create(ctx context.Context, job domain.HarvestJob) error
	Update(ctx context.Context, job domain.HarvestJob) error
	Get(ctx context.Context, jobID string) (domain.HarvestJob, error)
}

type ResultStore interface {
	PutProducts(ctx context.Context, jobID string, products []domain.Product) error
}

type Validator interface {
	Validate(ctx context.Context, target domain.StoreTarget) domain.ValidationResult
}

type Harvester interface {
	Harvest(ctx context.Context, baseURL string, progress domain.ProgressFunc) domain.HarvestResult
}

// ValidationCache and StoreLock are optional; a nil implementation disables
// the concern.
type ValidationCache interface {
	GetValidation(ctx context.Context, normalizedURL string) (domain.ValidationResult, bool)
	PutValidation(ctx context.Context, normalizedURL string, result domain.ValidationResult)
}

type StoreLock interface {
	AcquireLock(ctx context.Context, normalizedURL string) (bool, error)
	ReleaseLock(ctx context.Context, normalizedURL string)
}

type Orchestrator struct {
	harvestCost int
	jobs        JobStore
	results     ResultStore
	ledger      Ledger
	validator   Validator
	harvester   Harvester
	cache       ValidationCache
	lock        StoreLock
}

func New(harvestCost int, jobs JobStore, results ResultStore, ledger Ledger, validator Validator, harvester Harvester, cache ValidationCache, lock StoreLock) *Orchestrator {
	return &Orchestrator{
		harvestCost: harvestCost,
		jobs:        jobs,
		results:     results,
		ledger:      ledger,
		validator:   validator,
		harvester:   harvester,
		cache:       cache,
		lock:        lock,
	}
}

// Submit runs the synchronous, pre-job half of the sequence. Every
// rejection here happens before a job row exists. On success the returned
// job is persisted in pending and the per-store lock is held; the caller
// must follow up with Run.
func (o *Orchestrator) Submit(ctx context.Context, userID, rawURL string) (domain.HarvestJob, error) {
	if strings.TrimSpace(rawURL) == "" {
		return domain.HarvestJob{}, domain.ErrInvalidInput
	}
	target := storeurl.Target(rawURL)

	balance, err := o.ledger.Balance(ctx, userID)
	if err != nil {
		return domain.HarvestJob{}, fmt.Errorf("balance check failed: %w", err)
	}
	if balance < o.harvestCost {
		return domain.HarvestJob{}, &domain.InsufficientCreditsError{Required: o.harvestCost, Balance: balance}
	}

	validation, cached := o.cachedValidation(ctx, target)
	if !validation.Valid {
		return domain.HarvestJob{}, &domain.InvalidStoreError{Reason: validation.FailureReason}
	}
	if !cached && o.cache != nil {
		o.cache.PutValidation(ctx, target.NormalizedURL, validation)
	}

	if o.lock != nil {
		acquired, err := o.lock.AcquireLock(ctx, target.NormalizedURL)
		if err != nil {
			return domain.HarvestJob{}, fmt.Errorf("harvest lock failed: %w", err)
		}
		if !acquired {
			return domain.HarvestJob{}, domain.ErrHarvestInProgress
		}
	}

	now := time.Now().UTC()
	job := domain.HarvestJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Status:      domain.StatusPending,
		StoreTarget: validation.StoreTarget,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		if o.lock != nil {
			o.lock.ReleaseLock(ctx, target.NormalizedURL)
		}
		return domain.HarvestJob{}, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (o *Orchestrator) cachedValidation(ctx context.Context, target domain.StoreTarget) (domain.ValidationResult, bool) {
	if o.cache != nil {
		if result, ok := o.cache.GetValidation(ctx, target.NormalizedURL); ok {
			return result, true
		}
	}
	return o.validator.Validate(ctx, target), false
}

// Run is the background task body for a job created by Submit. It owns the
// job row exclusively and guarantees a terminal state: any error or panic
// past this point downgrades to a failed job rather than leaving it stuck
// in running.
func (o *Orchestrator) Run(ctx context.Context, job domain.HarvestJob) {
	// Job-row writes, billing and the lock release must not ride on the
	// harvest's context: a shutdown signal cancels ctx mid-harvest, the
	// harvester salvages what it has, and the terminal state still has to
	// land in the store or the job would sit in running forever.
	persistCtx := context.WithoutCancel(ctx)
	if o.lock != nil {
		defer o.lock.ReleaseLock(persistCtx, job.StoreTarget.NormalizedURL)
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Harvest panicked", "job_id", job.ID, "panic", p)
			o.finalize(persistCtx, job, domain.StatusFailed, fmt.Sprintf("internal error: %v", p))
		}
	}()

	job.Status = domain.StatusRunning
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.Update(persistCtx, job); err != nil {
		slog.Error("Failed to mark job running", "job_id", job.ID, "error", err)
	}
	metrics.HarvestsStarted.Inc()
	started := time.Now()

	result := o.harvester.Harvest(ctx, job.StoreTarget.NormalizedURL, func(page, total int) {
		slog.Info("Harvest progress", "job_id", job.ID, "page", page, "total_records", total)
	})
	metrics.HarvestDuration.Observe(time.Since(started).Seconds())
	metrics.HarvestOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	if result.Outcome == domain.OutcomeFailure {
		slog.Warn("Harvest failed", "job_id", job.ID, "url", job.StoreTarget.NormalizedURL, "error", result.ErrorMessage)
		o.finalize(persistCtx, job, domain.StatusFailed, result.ErrorMessage)
		return
	}

	// Partial success is billable: the harvest consumed feed quota and the
	// user receives real data. A debit failure is logged and swallowed —
	// billing races must never erase already-delivered products.
	if err := o.ledger.Debit(persistCtx, job.UserID, o.harvestCost, job.ID); err != nil {
		slog.Error("Credit debit failed, completing job anyway", "job_id", job.ID, "user_id", job.UserID, "error", err)
	}

	products := normalizer.NormalizeAll(result.Records)
	if err := o.results.PutProducts(persistCtx, job.ID, products); err != nil {
		slog.Error("Failed to persist products", "job_id", job.ID, "error", err)
		o.finalize(persistCtx, job, domain.StatusFailed, fmt.Sprintf("failed to persist products: %s", err))
		return
	}
	metrics.ProductsHarvested.Add(float64(len(products)))

	job.ProductCount = len(products)
	job.Warning = result.Warning
	if result.Outcome == domain.OutcomePartialSuccess {
		slog.Warn("Harvest completed partially", "job_id", job.ID, "warning", result.Warning, "products", len(products))
	}
	o.finalize(persistCtx, job, domain.StatusCompleted, "")
	slog.Info("Harvest finished", "job_id", job.ID, "outcome", result.Outcome, "products", len(products), "pages", result.PagesFetched)
}

func (o *Orchestrator) finalize(ctx context.Context, job domain.HarvestJob, status domain.JobStatus, errMsg string) {
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	if err := o.jobs.Update(ctx, job); err != nil {
		slog.Error("Failed to finalize job", "job_id", job.ID, "status", status, "error", err)
	}
}
