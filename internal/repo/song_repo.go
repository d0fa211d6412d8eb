// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Song and
// Category models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a song is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-music-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the workflow layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation, e.g. a second song
// row for a request_id that already has one.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognises unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateSong inserts a new Song row owned by userID together with its
// category associations. Categories are upserted by name: an existing row is
// reused, a missing one is created. Intended to be called with a
// transaction-scoped db handle so the insert commits atomically with the
// credit debit.
//
// Returns ErrDuplicate when a song already exists for the request id.
func CreateSong(ctx context.Context, db *gorm.DB, s *domain.Song, categoryNames []string) (*domain.Song, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	cats := make([]domain.Category, 0, len(categoryNames))
	for _, name := range categoryNames {
		c, err := UpsertCategory(ctx, db, name)
		if err != nil {
			return nil, err
		}
		cats = append(cats, *c)
	}
	s.Categories = cats

	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// UpsertCategory returns the category named name, creating it on first use.
func UpsertCategory(ctx context.Context, db *gorm.DB, name string) (*domain.Category, error) {
	var c domain.Category
	err := db.WithContext(ctx).
		Where("name = ?", name).
		Attrs(domain.Category{ID: uuid.NewString()}).
		FirstOrCreate(&c, domain.Category{Name: name}).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetSongByRequestID fetches the song created for a given idempotency key,
// or ErrNotFound. This is the replay lookup the workflow performs inside its
// persistence transaction.
func GetSongByRequestID(ctx context.Context, db *gorm.DB, requestID string) (*domain.Song, error) {
	var s domain.Song
	err := db.WithContext(ctx).
		Preload("Categories").
		Where("request_id = ?", requestID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSong fetches a song by primary key, or ErrNotFound.
func GetSong(ctx context.Context, db *gorm.DB, id string) (*domain.Song, error) {
	var s domain.Song
	err := db.WithContext(ctx).
		Preload("Categories").
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetAccessibleSong fetches a song the given user may play: either the user
// owns it or it is published. Returns ErrNotFound otherwise (existence of
// another user's private song is not revealed).
func GetAccessibleSong(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Song, error) {
	var s domain.Song
	err := db.WithContext(ctx).
		Where("id = ? AND (user_id = ? OR published = ?)", id, userID, true).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSongs returns the total number of songs owned by userID.
func CountSongs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Song{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListSongsPage returns a paginated slice of the user's songs, newest first.
// The caller is responsible for computing offset and limit.
func ListSongsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Song, error) {
	var out []domain.Song
	err := db.WithContext(ctx).
		Preload("Categories").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountPublishedSongs returns the number of published songs with audio.
func CountPublishedSongs(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Song{}).
		Where("published = ? AND audio_key <> ''", true).
		Count(&total).Error
	return total, err
}

// ListPublishedPage returns a page of the public feed, newest first.
func ListPublishedPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Song, error) {
	var out []domain.Song
	err := db.WithContext(ctx).
		Preload("Categories").
		Where("published = ? AND audio_key <> ''", true).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SetPublished flips the published flag on a song owned by userID.
// Returns ErrNotFound when the song is missing or not owned by the user.
func SetPublished(ctx context.Context, db *gorm.DB, id, userID string, published bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Song{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("published", published)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementListenCount bumps the play counter without a read-modify-write
// race; the arithmetic happens in the UPDATE itself.
func IncrementListenCount(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Song{}).
		Where("id = ?", id).
		UpdateColumn("listen_count", gorm.Expr("listen_count + 1")).Error
}

// SongsStats returns aggregate metadata for a user's songs: the total number
// of rows and the maximum UpdatedAt timestamp among them. Used for ETag
// generation on the listing endpoint; when the user has no songs, count is 0
// and maxUpdatedAt is nil.
func SongsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Song{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
