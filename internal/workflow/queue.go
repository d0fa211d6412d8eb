// Package workflow – Queue
//
// The queue is the durable execution layer around the engine. Submissions
// are persisted as generation_jobs rows before anything runs, so a crash
// between accept and completion loses nothing: the next sweep picks the job
// up again. Workers claim jobs with a transactional status flip, which keeps
// two workers off the same row, and jobs for different request ids run fully
// in parallel. Claims are leases, not ownership: a row left in running by a
// crashed worker is flipped back to pending once its claim timeout lapses,
// so an interrupted job is always eventually reprocessed.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-music-backend/internal/domain"
	"github.com/tbourn/go-music-backend/internal/repo"
	"github.com/tbourn/go-music-backend/internal/synth"
)

// QueueOptions configures the worker pool.
type QueueOptions struct {
	// Workers is the number of concurrent job processors.
	Workers int
	// PollInterval is the cadence of the pending-job sweep. Submissions also
	// nudge workers directly, so this is a backstop for jobs recovered after
	// a restart or requeued after a persistence failure.
	PollInterval time.Duration
	// MaxRuns caps whole-workflow reruns (claims) per job. Only persistence
	// failures requeue; generation failures and exhausted credits are
	// terminal on the first run.
	MaxRuns int
	// ClaimTimeout bounds how long a claim may sit in running without a
	// status update before the job is considered abandoned and returned to
	// pending. Must exceed the longest plausible generation run.
	ClaimTimeout time.Duration
}

// Queue dispatches persisted generation jobs to the engine.
type Queue struct {
	db     *gorm.DB
	engine *Engine
	opts   QueueOptions
	logger zerolog.Logger

	notify  chan struct{}
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue constructs a Queue. Zero or negative option fields are coerced to
// safe defaults (1 worker, 2s poll, 1 run, 10m claim timeout).
func NewQueue(db *gorm.DB, engine *Engine, opts QueueOptions, logger zerolog.Logger) *Queue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxRuns < 1 {
		opts.MaxRuns = 1
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 10 * time.Minute
	}
	return &Queue{
		db:     db,
		engine: engine,
		opts:   opts,
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

// Submit durably records a generation request and wakes the worker pool.
// Redelivery of an already-submitted request id returns the existing job
// unchanged, so at-least-once submission collapses to exactly one job.
func (q *Queue) Submit(ctx context.Context, req Request) (*domain.GenerationJob, error) {
	job, created, err := repo.UpsertJob(ctx, q.db, req.RequestID, req.UserID, req.Prompt, req.Instrumental, req.Lyrics)
	if err != nil {
		return nil, err
	}
	if created {
		q.nudge()
	}
	return job, nil
}

// Start launches the worker pool. Safe to call once; later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		q.logger.Warn().Msg("workflow queue: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.workerLoop(loopCtx)
	}
	q.wg.Add(1)
	go q.recoveryLoop(loopCtx)
}

// Stop cancels the workers and waits for in-flight jobs to reach a terminal
// or requeued state, or for ctx to expire.
func (q *Queue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nudge wakes one idle worker without blocking the submitter.
func (q *Queue) nudge() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) workerLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything claimable before sleeping.
		for q.runOne(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// recoveryLoop sweeps for jobs abandoned mid-claim: once immediately on
// startup, covering claims orphaned by the previous process, then on every
// poll tick for workers lost while this process runs.
func (q *Queue) recoveryLoop(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		q.recoverStale(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) recoverStale(ctx context.Context) {
	n, err := repo.RecoverStaleJobs(ctx, q.db, q.opts.ClaimTimeout)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error().Err(err).Msg("workflow queue: stale-claim recovery failed")
		}
		return
	}
	if n > 0 {
		q.logger.Warn().Int64("jobs", n).Msg("workflow queue: recovered jobs with expired claims")
		q.nudge()
	}
}

// runOne claims and processes a single job. Returns false when nothing was
// pending.
func (q *Queue) runOne(ctx context.Context) bool {
	claimed, err := repo.ClaimPendingJobs(ctx, q.db, 1)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error().Err(err).Msg("workflow queue: claim failed")
		}
		return false
	}
	if len(claimed) == 0 {
		return false
	}
	q.process(ctx, &claimed[0])
	return true
}

// process runs the engine for a claimed job and records the outcome.
func (q *Queue) process(ctx context.Context, job *domain.GenerationJob) {
	start := time.Now()
	lg := q.logger.With().
		Str("job_id", job.ID).
		Str("request_id", job.RequestID).
		Str("user_id", job.UserID).
		Int("attempt", job.Attempts).
		Logger()

	song, err := q.engine.Run(ctx, Request{
		RequestID:    job.RequestID,
		UserID:       job.UserID,
		Prompt:       job.Prompt,
		Instrumental: job.Instrumental,
		Lyrics:       job.Lyrics,
	})

	// Status bookkeeping runs on a detached context: a shutdown that
	// cancelled the run must not also prevent recording its outcome.
	store := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		if merr := repo.MarkJobCompleted(store, q.db, job.ID, song.ID); merr != nil {
			lg.Error().Err(merr).Msg("job completed but status update failed")
			return
		}
		jobsFinished.WithLabelValues("completed").Inc()
		jobDuration.Observe(time.Since(start).Seconds())
		lg.Info().Str("song_id", song.ID).Msg("generation completed")

	case ctx.Err() != nil:
		// The run was interrupted, not judged: shutdown cancelled the
		// context while the engine was still working (typically inside a
		// synth retry wait). Return the job to pending so the next pool run
		// picks it up; if even the requeue fails, stale-claim recovery will.
		if rerr := repo.RequeueJob(store, q.db, job.ID, "interrupted by shutdown"); rerr != nil {
			lg.Error().Err(rerr).Msg("shutdown requeue failed, leaving job for claim recovery")
			return
		}
		lg.Info().Msg("run interrupted by shutdown, job requeued")

	case errors.Is(err, ErrInsufficientCredits):
		q.finish(store, job, "insufficient_credits", err, lg)

	case IsPersistence(err):
		if job.Attempts >= q.opts.MaxRuns {
			q.finish(store, job, "persistence_failed", err, lg)
			return
		}
		if rerr := repo.RequeueJob(store, q.db, job.ID, truncateErr(err)); rerr != nil {
			lg.Error().Err(rerr).Msg("requeue failed")
			return
		}
		lg.Warn().Err(err).Msg("persistence failed, job requeued")

	default:
		// Permanent generation failure, or a transient one that exhausted
		// its per-step retry budget.
		q.finish(store, job, failureResult(err), err, lg)
	}
}

// finish records a terminal failure.
func (q *Queue) finish(ctx context.Context, job *domain.GenerationJob, result string, cause error, lg zerolog.Logger) {
	if merr := repo.MarkJobFailed(ctx, q.db, job.ID, truncateErr(cause)); merr != nil {
		lg.Error().Err(merr).Msg("failed-status update failed")
		return
	}
	jobsFinished.WithLabelValues(result).Inc()
	lg.Warn().Err(cause).Str("result", result).Msg("generation failed")
}

// failureResult maps an error to the coarse metric label.
func failureResult(err error) string {
	var se *synth.Error
	if errors.As(err, &se) {
		return "generation_failed"
	}
	return "failed"
}

// truncateErr bounds stored error text so a chatty backend cannot bloat the
// jobs table.
func truncateErr(err error) string {
	s := err.Error()
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
