// Package workflow – Engine
//
// The engine owns the multi-step generation pipeline: invoke the external
// synthesis backend, normalize its output, persist the song atomically with
// the credit debit, then signal listing-view invalidation. Steps carry
// independent retry semantics; whole-workflow idempotency is keyed by the
// caller-supplied request id.
package workflow

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-music-backend/internal/domain"
	"github.com/tbourn/go-music-backend/internal/repo"
	"github.com/tbourn/go-music-backend/internal/synth"
)

// Request is one generation event. RequestID is attached by the submitter,
// never generated here; that is what makes redelivered submissions safe.
type Request struct {
	RequestID    string
	UserID       string
	Prompt       string
	Instrumental bool
	Lyrics       string
}

// SynthClient is the contract the engine needs from the synthesis backend.
type SynthClient interface {
	Generate(ctx context.Context, prompt string, instrumental bool, lyrics string) (*synth.Result, error)
}

// Invalidator receives the post-commit signal that a user's song listing
// changed. Implementations must be cheap; failures are logged, never
// propagated, and never roll anything back.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Engine runs generation requests to a terminal state. All dependencies are
// injected; the engine holds no global state and is safe for concurrent use.
type Engine struct {
	DB     *gorm.DB
	Synth  SynthClient
	Views  Invalidator // optional
	Retry  Policy
	Logger zerolog.Logger
}

// NewEngine constructs an Engine with the given dependencies.
func NewEngine(db *gorm.DB, client SynthClient, views Invalidator, retry Policy, logger zerolog.Logger) *Engine {
	return &Engine{DB: db, Synth: client, Views: views, Retry: retry, Logger: logger}
}

// Run drives one request to completion. It is re-entrant per request id:
// replaying a completed request returns the previously stored song without
// re-invoking the backend or re-debiting credits.
//
// Error taxonomy: *synth.Error (permanent backend failure, after the retry
// budget for the transient class is spent), ErrInsufficientCredits, or
// *PersistenceError (whole-run retryable).
func (e *Engine) Run(ctx context.Context, req Request) (*domain.Song, error) {
	tr := otel.Tracer("workflow/Engine")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("user.id", req.UserID),
		),
	)
	defer span.End()

	// Completed-workflow fast path: skip the backend call entirely.
	if existing, err := repo.GetSongByRequestID(ctx, e.DB, req.RequestID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, &PersistenceError{Err: err}
	}

	// Step 1: invoke the external backend under the transient retry budget.
	result, err := e.invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	// Step 2: pure normalization.
	categories := NormalizeCategories(result.RawCategories)

	// Step 3: atomic persistence (replay lookup + debit + insert).
	song, err := e.persist(ctx, req, result, categories)
	if err != nil {
		return nil, err
	}

	// Step 4: post-commit invalidation, outside the consistency boundary.
	if e.Views != nil {
		if ierr := e.Views.Invalidate(ctx, req.UserID); ierr != nil {
			e.Logger.Warn().
				Err(ierr).
				Str("request_id", req.RequestID).
				Str("user_id", req.UserID).
				Msg("listing invalidation failed")
		}
	}

	return song, nil
}

// invoke calls the synthesis backend, retrying only the transient class.
func (e *Engine) invoke(ctx context.Context, req Request) (*synth.Result, error) {
	tr := otel.Tracer("workflow/Engine")
	ctx, span := tr.Start(ctx, "invoke")
	defer span.End()

	var result *synth.Result
	err := e.Retry.Do(ctx, synth.IsRetryable, func() error {
		var ferr error
		result, ferr = e.Synth.Generate(ctx, req.Prompt, req.Instrumental, req.Lyrics)
		if ferr != nil {
			synthAttempts.WithLabelValues("error").Inc()
			return ferr
		}
		synthAttempts.WithLabelValues("ok").Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// persist runs the single transaction that makes the workflow exactly-once:
// the replay lookup, the compare-and-decrement debit, the category upserts,
// and the song insert all commit together or not at all.
func (e *Engine) persist(ctx context.Context, req Request, result *synth.Result, categories []string) (*domain.Song, error) {
	tr := otel.Tracer("workflow/Engine")
	ctx, span := tr.Start(ctx, "persist")
	defer span.End()

	var out *domain.Song
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Idempotent replay: a prior delivery already committed. Return it
		// without touching the ledger.
		existing, gerr := repo.GetSongByRequestID(ctx, tx, req.RequestID)
		if gerr == nil {
			out = existing
			return nil
		}
		if !errors.Is(gerr, repo.ErrNotFound) {
			return gerr
		}

		debited, derr := repo.DebitCredit(ctx, tx, req.UserID)
		if derr != nil {
			return derr
		}
		if !debited {
			return ErrInsufficientCredits
		}

		song, cerr := repo.CreateSong(ctx, tx, &domain.Song{
			RequestID:    req.RequestID,
			UserID:       req.UserID,
			Title:        DeriveTitle(result.Title),
			AudioKey:     result.AudioKey,
			ImageKey:     result.ImageKey,
			Lyrics:       result.Lyrics,
			Instrumental: req.Instrumental,
		}, categories)
		if cerr != nil {
			return cerr
		}
		out = song
		return nil
	})

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrInsufficientCredits):
		return nil, ErrInsufficientCredits
	case errors.Is(err, repo.ErrDuplicate):
		// A concurrent duplicate delivery won the insert race; its commit is
		// the canonical one and our debit was rolled back with the aborted
		// transaction.
		winner, gerr := repo.GetSongByRequestID(ctx, e.DB, req.RequestID)
		if gerr != nil {
			return nil, &PersistenceError{Err: gerr}
		}
		return winner, nil
	default:
		return nil, &PersistenceError{Err: err}
	}
}
