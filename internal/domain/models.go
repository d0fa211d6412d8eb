// Package domain defines the persistence models for songs, categories, and
// credit balances. These types are mapped with GORM and form the core data
// layer of the music generation backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Song is the persisted record of a completed generation. Exactly one row
// exists per RequestID; the unique index on that column is what collapses
// duplicate workflow deliveries into a single artifact.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - RequestID: caller-supplied idempotency key; globally unique.
//   - UserID: identifier of the owner; indexed for listing queries.
//   - Title: human-readable title derived from the generation prompt.
//   - AudioKey / ImageKey: object-storage keys for the produced media.
//   - Lyrics: full lyrics text (empty for instrumental tracks).
//   - Instrumental: whether the track was generated without vocals.
//   - Published: owner-controlled visibility flag.
//   - ListenCount: incremented on playback access by non-owners.
//   - Categories: normalized genre tags, shared across songs.
type Song struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	RequestID    string         `json:"request_id"    gorm:"type:char(36);not null;uniqueIndex:ux_songs_request"`
	UserID       string         `json:"user_id"       gorm:"type:varchar(64);not null;index:idx_user_songs"`
	Title        string         `json:"title"         gorm:"type:varchar(255);not null"`
	AudioKey     string         `json:"audio_key"     gorm:"type:varchar(512);not null"`
	ImageKey     string         `json:"image_key"     gorm:"type:varchar(512)"`
	Lyrics       string         `json:"lyrics"        gorm:"type:text"`
	Instrumental bool           `json:"instrumental"  gorm:"not null;default:false"`
	Published    bool           `json:"published"     gorm:"not null;default:false;index"`
	ListenCount  int64          `json:"listen_count"  gorm:"not null;default:0;check:listen_count >= 0"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`

	Categories []Category `json:"categories" gorm:"many2many:song_categories;"`
}

// TableName returns the database table name for Song.
func (Song) TableName() string { return "songs" }

// Category is a genre tag created on first use (upsert-by-name) and shared
// across songs. Categories are never deleted.
type Category struct {
	ID        string    `json:"id"   gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(120);not null;uniqueIndex:ux_categories_name"`
	CreatedAt time.Time `json:"-"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// CreditBalance is the per-user resource ledger. Credits are debited exactly
// once per successful generation and topped up by the billing webhook.
// The balance never goes negative as an effect of the generation workflow:
// the debit is an atomic compare-and-decrement that refuses at credits <= 0.
type CreditBalance struct {
	UserID    string    `json:"user_id" gorm:"type:varchar(64);primaryKey"`
	Credits   int64     `json:"credits" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for CreditBalance.
func (CreditBalance) TableName() string { return "credit_balances" }
