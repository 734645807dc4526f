package processing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"masterpost/internal/credits"
	"masterpost/internal/domain"
	"masterpost/internal/pipeline"
	"masterpost/internal/storage"
)

const defaultBatchSize = 5

// Manager owns the job lifecycle: state transitions, batching, progress
// accounting and settlement. A single Manager goroutine drives one job at a
// time; the worker pool underneath parallelizes the per-image work.
type Manager struct {
	jobs      domain.JobRepository
	settler   *credits.Service
	store     *storage.FileStore
	pool      *Pool
	segmenter pipeline.Segmenter

	batchSize       int
	batchPause      time.Duration
	premiumFallback bool
	logger          zerolog.Logger
}

// ManagerOptions wire the manager's collaborators and tuning knobs.
type ManagerOptions struct {
	Jobs    domain.JobRepository
	Settler *credits.Service
	Store   *storage.FileStore
	Pool    *Pool
	// Segmenter is the shared hosted-model handle used by premium jobs.
	Segmenter pipeline.Segmenter
	// BatchSize bounds how many images are decoded at once; defaults to 5.
	BatchSize int
	// BatchPause is the memory-reclamation breather between batches.
	BatchPause time.Duration
	// PremiumFallback lets premium jobs fall back to the local strategy when
	// the provider errors, instead of failing the image.
	PremiumFallback bool
	Logger          zerolog.Logger
}

func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		jobs:            opts.Jobs,
		settler:         opts.Settler,
		store:           opts.Store,
		pool:            opts.Pool,
		segmenter:       opts.Segmenter,
		batchSize:       opts.BatchSize,
		batchPause:      opts.BatchPause,
		premiumFallback: opts.PremiumFallback,
		logger:          opts.Logger,
	}
	if m.batchSize <= 0 {
		m.batchSize = defaultBatchSize
	}
	if m.batchPause < 0 {
		m.batchPause = 0
	}
	return m
}

// Create validates the request and records a new job in the uploaded state.
// Total never changes after this point.
func (m *Manager) Create(ctx context.Context, userID, profileName string, tier domain.Tier, totalFiles int, settings Settings) (*domain.Job, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if totalFiles <= 0 {
		return nil, fmt.Errorf("%w: job needs at least one image", domain.ErrValidation)
	}
	if tier != domain.TierBasic && tier != domain.TierPremium {
		return nil, fmt.Errorf("%w: unknown tier %q", domain.ErrValidation, tier)
	}
	if _, err := pipeline.LookupProfile(profileName); err != nil {
		return nil, err
	}
	raw, err := EncodeSettings(settings)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       domain.JobStatusUploaded,
		Pipeline:     profileName,
		Tier:         tier,
		TotalFiles:   totalFiles,
		SettingsJSON: raw,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	m.logger.Info().Str("job_id", job.ID).Str("pipeline", profileName).Int("total", totalFiles).Msg("job created")
	return job, nil
}

// Start transitions an uploaded job to processing and runs it to a terminal
// state. The transition is a conditional write, so of two concurrent Start
// calls exactly one runs the job; the loser gets ErrInvalidState. Unknown jobs
// return ErrNotFound.
func (m *Manager) Start(ctx context.Context, jobID string) error {
	if err := m.jobs.MarkProcessing(ctx, jobID); err != nil {
		return err
	}
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	m.Run(ctx, job)
	return nil
}

// Run processes a job that is already in the processing state (either via
// Start or via an atomic claim) down to a terminal state. Any panic or
// unhandled error is absorbed into a failed status so a crashed run can never
// leave the job stuck in processing.
func (m *Manager) Run(ctx context.Context, job *domain.Job) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("job run panicked")
			m.failJob(job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := m.run(ctx, job); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
		m.failJob(job.ID, err.Error())
	}
}

func (m *Manager) run(ctx context.Context, job *domain.Job) error {
	profile, err := pipeline.LookupProfile(job.Pipeline)
	if err != nil {
		return err
	}
	settings, err := DecodeSettings(job.SettingsJSON)
	if err != nil {
		return err
	}
	transformer := m.buildTransformer(profile, job.Tier, settings)

	inputs, err := m.store.ListInputs(job.ID, pipeline.SupportedInput)
	if err != nil {
		return fmt.Errorf("upload directory not found for job %s", job.ID)
	}
	if len(inputs) == 0 {
		return errors.New("no valid image files found")
	}
	outDir, err := m.store.OutputDir(job.ID)
	if err != nil {
		return err
	}

	tasks := make([]domain.Task, len(inputs))
	for i, path := range inputs {
		index := i + 1
		tasks[i] = domain.Task{
			Index:      index,
			InputPath:  path,
			OutputPath: filepath.Join(outDir, pipeline.OutputName(index, filepath.Ext(path))),
		}
	}

	transform := func(tctx context.Context, task domain.Task) domain.Result {
		method, perr := transformer.Process(tctx, task.InputPath, task.OutputPath)
		if perr != nil {
			return domain.Result{Index: task.Index, Method: method, Err: perr}
		}
		return domain.Result{Index: task.Index, OK: true, Method: method, OutputPath: task.OutputPath}
	}

	processed, failed := 0, 0
	total := len(tasks)
	m.logger.Info().Str("job_id", job.ID).Int("total", total).Int("batch_size", m.batchSize).Msg("starting batch processing")

	for batchStart := 0; batchStart < total; batchStart += m.batchSize {
		cancelled, err := m.jobCancelled(ctx, job.ID)
		if err != nil {
			return err
		}
		if cancelled {
			m.logger.Info().Str("job_id", job.ID).Msg("job cancelled between batches")
			return nil
		}

		batchEnd := batchStart + m.batchSize
		if batchEnd > total {
			batchEnd = total
		}
		batch := tasks[batchStart:batchEnd]

		m.pool.Run(ctx, batch, transform, func(res domain.Result, _, _ int) {
			if res.OK {
				processed++
			} else {
				failed++
				m.logger.Error().Err(res.Err).Str("job_id", job.ID).Int("index", res.Index).Msg("image failed")
			}
			// Counter writes happen here, in the collector goroutine, so the
			// job row always has exactly one writer.
			if uerr := m.jobs.UpdateProgress(ctx, job.ID, processed, failed); uerr != nil {
				m.logger.Warn().Err(uerr).Str("job_id", job.ID).Msg("progress update failed")
			}
		})

		// Decoded rasters for a 5-image batch can hold tens of megabytes of
		// pixel data; reclaim before the next batch starts.
		runtime.GC()
		if batchEnd < total && m.batchPause > 0 {
			select {
			case <-time.After(m.batchPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// A cancel that lands while the final batch is in flight still wins: the
	// job stays cancelled and is never settled.
	cancelled, err := m.jobCancelled(ctx, job.ID)
	if err != nil {
		return err
	}
	if cancelled {
		m.logger.Info().Str("job_id", job.ID).Msg("job cancelled during final batch")
		return nil
	}

	return m.finish(ctx, job, processed, failed)
}

func (m *Manager) finish(ctx context.Context, job *domain.Job, processed, failed int) error {
	job.Processed = processed
	job.Failed = failed

	switch {
	case failed == 0:
		if err := m.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCompleted, ""); err != nil {
			return err
		}
		job.Status = domain.JobStatusCompleted
		m.logger.Info().Str("job_id", job.ID).Int("processed", processed).Msg("job completed")
	case processed > 0:
		msg := fmt.Sprintf("Processed %d files, %d failed", processed, failed)
		if err := m.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCompletedWithErrors, msg); err != nil {
			return err
		}
		job.Status = domain.JobStatusCompletedWithErrors
		m.logger.Warn().Str("job_id", job.ID).Int("processed", processed).Int("failed", failed).Msg("job completed with errors")
	default:
		if err := m.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, "All files failed to process"); err != nil {
			return err
		}
		job.Status = domain.JobStatusFailed
		m.logger.Error().Str("job_id", job.ID).Msg("job failed: all files failed")
		return nil
	}

	// Settlement failures never revert a completed job; the settler logs them
	// for reconciliation.
	if err := m.settler.Settle(ctx, job); err != nil && !errors.Is(err, domain.ErrSettlementFailure) {
		return err
	}
	return nil
}

// Cancel moves an uploaded or processing job to cancelled. An in-flight batch
// runs to completion first; the orchestrator observes the new status at the
// next batch boundary, so cancellation latency is bounded by one batch.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case domain.JobStatusUploaded, domain.JobStatusProcessing:
		return m.jobs.UpdateStatus(ctx, jobID, domain.JobStatusCancelled, "")
	default:
		return fmt.Errorf("%w: cannot cancel job in state %s", domain.ErrInvalidState, job.Status)
	}
}

// Progress reads the externally visible processing state at any time.
func (m *Manager) Progress(ctx context.Context, jobID string) (domain.Progress, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.ProgressOf(job), nil
}

func (m *Manager) jobCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == domain.JobStatusCancelled, nil
}

func (m *Manager) buildTransformer(profile pipeline.Profile, tier domain.Tier, settings Settings) *pipeline.Transformer {
	opts := pipeline.TransformerOptions{Shadow: settings.Shadow}
	if tier == domain.TierPremium {
		opts.Remover = pipeline.ExternalSegmentation{Provider: m.segmenter}
		if m.premiumFallback {
			opts.Fallback = settings.localRemover()
		}
	} else {
		opts.Remover = settings.localRemover()
	}
	return pipeline.NewTransformer(profile, opts)
}

func (m *Manager) failJob(jobID, message string) {
	// Best effort with a fresh context: the run context may already be gone.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, message); err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to record job failure")
	}
}
