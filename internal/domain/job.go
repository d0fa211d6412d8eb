// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and workflow layers.
package domain

import "time"

// Job status values. A job is terminal once it reaches StatusCompleted or
// StatusFailed; no further transitions occur.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// GenerationJob is the durable record of one generation workflow, keyed by
// the caller-supplied RequestID. Submission upserts by RequestID, so
// at-least-once delivery of the same logical request collapses to a single
// job row. The row doubles as the poll-able status surface for clients.
type GenerationJob struct {
	ID           string    `json:"id"           gorm:"type:char(36);primaryKey"`
	RequestID    string    `json:"request_id"   gorm:"type:char(36);not null;uniqueIndex:ux_jobs_request"`
	UserID       string    `json:"user_id"      gorm:"type:varchar(64);not null;index"`
	Prompt       string    `json:"prompt"       gorm:"type:text;not null"`
	Instrumental bool      `json:"instrumental" gorm:"not null;default:false"`
	Lyrics       string    `json:"lyrics"       gorm:"type:text"`
	Status       string    `json:"status"       gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','running','completed','failed')"`
	Attempts     int       `json:"attempts"     gorm:"not null;default:0"`
	LastError    string    `json:"last_error,omitempty" gorm:"type:text"`
	SongID       *string   `json:"song_id,omitempty"    gorm:"type:char(36)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (GenerationJob) TableName() string { return "generation_jobs" }

// Terminal reports whether the job has reached a state from which the
// workflow performs no further transitions.
func (j *GenerationJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
