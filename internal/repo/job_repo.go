// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// GenerationJob model that backs the durable workflow queue.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-music-backend/internal/domain"
)

// UpsertJob records a submitted generation request. The unique index on
// request_id means a redelivered submission lands on the existing row: in
// that case the stored job is returned unchanged, and the second return
// value is false.
func UpsertJob(ctx context.Context, db *gorm.DB, requestID, userID, prompt string, instrumental bool, lyrics string) (*domain.GenerationJob, bool, error) {
	now := time.Now().UTC()
	job := &domain.GenerationJob{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		UserID:       userID,
		Prompt:       prompt,
		Instrumental: instrumental,
		Lyrics:       lyrics,
		Status:       domain.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(job).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, false, err
		}
		existing, gerr := GetJobByRequestID(ctx, db, requestID)
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}
	return job, true, nil
}

// GetJob fetches a job by ID ensuring it belongs to the user.
func GetJob(ctx context.Context, db *gorm.DB, id, userID string) (*domain.GenerationJob, error) {
	var j domain.GenerationJob
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJobByRequestID fetches a job by its idempotency key, or ErrNotFound.
func GetJobByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*domain.GenerationJob, error) {
	var j domain.GenerationJob
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimPendingJobs flips up to limit pending jobs to running and returns
// them. The status flip happens inside one transaction, so two concurrent
// workers never claim the same job. Claimed jobs have Attempts incremented.
func ClaimPendingJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.GenerationJob, error) {
	var claimed []domain.GenerationJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []domain.GenerationJob
		if err := tx.
			Where("status = ?", domain.JobStatusPending).
			Order("created_at asc").
			Limit(limit).
			Find(&pending).Error; err != nil {
			return err
		}
		for i := range pending {
			res := tx.Model(&domain.GenerationJob{}).
				Where("id = ? AND status = ?", pending[i].ID, domain.JobStatusPending).
				Updates(map[string]any{
					"status":     domain.JobStatusRunning,
					"attempts":   gorm.Expr("attempts + 1"),
					"updated_at": time.Now().UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				pending[i].Status = domain.JobStatusRunning
				pending[i].Attempts++
				claimed = append(claimed, pending[i])
			}
		}
		return nil
	})
	return claimed, err
}

// RecoverStaleJobs returns running jobs whose claim went quiet back to
// pending. A worker that died between claim and terminal update leaves the
// row stuck in running; once updated_at falls behind the claim timeout the
// job becomes claimable again. Returns the number of recovered jobs.
func RecoverStaleJobs(ctx context.Context, db *gorm.DB, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("status = ? AND updated_at < ?", domain.JobStatusRunning, now.Add(-olderThan)).
		Updates(map[string]any{
			"status":     domain.JobStatusPending,
			"last_error": "claim expired",
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// MarkJobCompleted records the terminal success state and links the song.
func MarkJobCompleted(ctx context.Context, db *gorm.DB, id, songID string) error {
	return db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.JobStatusCompleted,
			"song_id":    songID,
			"last_error": "",
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkJobFailed records the terminal failure state with a reason.
func MarkJobFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	return db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.JobStatusFailed,
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		}).Error
}

// RequeueJob returns a running job to pending so a later sweep retries the
// whole workflow. Used for persistence failures, which are safe to rerun
// because the persistence step is idempotent on request_id.
func RequeueJob(ctx context.Context, db *gorm.DB, id, reason string) error {
	return db.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.JobStatusPending,
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		}).Error
}
