// Generation HTTP handlers.
//
// This file exposes REST endpoints for the generation workflow:
//   - POST /generations        (submit, idempotent on request_id)
//   - GET  /generations/{id}   (poll job status, owner only)
//
// Handlers are transport-thin: they validate input, hand the request to the
// durable queue, and translate job state into HTTP responses. The caller
// supplies the request_id; submitting the same id again returns the existing
// job rather than starting a second workflow.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-music-backend/internal/domain"
	"github.com/tbourn/go-music-backend/internal/lease"
	"github.com/tbourn/go-music-backend/internal/repo"
	"github.com/tbourn/go-music-backend/internal/views"
	"github.com/tbourn/go-music-backend/internal/workflow"
)

//
// Service contracts (context-aware)
//

// Submitter accepts a generation request for durable, asynchronous execution.
//
// Implementations must be safe for concurrent use and must collapse repeated
// submissions of one request id to a single job.
type Submitter interface {
	Submit(ctx context.Context, req workflow.Request) (*domain.GenerationJob, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for generations, songs, and credits.
// It depends on the durable queue through the Submitter interface to keep
// transport concerns separate from workflow execution.
type Handlers struct {
	db     *gorm.DB
	queue  Submitter
	views  *views.ListVersions
	leases *lease.Cache
}

// New constructs a Handlers instance bound to the given dependencies.
func New(db *gorm.DB, queue Submitter, v *views.ListVersions, leases *lease.Cache) *Handlers {
	return &Handlers{db: db, queue: queue, views: v, leases: leases}
}

// userID extracts the authenticated user id from Gin context (set by the
// session resolver middleware). If absent, it falls back to the "X-User-ID"
// header (tests use it). It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

//
// DTOs
//

// SubmitGenerationRequest is the JSON payload for submitting a generation.
type SubmitGenerationRequest struct {
	// RequestID is the caller-supplied idempotency key for the whole workflow.
	RequestID string `json:"request_id" binding:"required,uuid"`
	// Prompt describes the song to generate.
	Prompt string `json:"prompt" binding:"required,max=2000"`
	// Instrumental skips vocal synthesis when true.
	Instrumental bool `json:"instrumental"`
	// Lyrics optionally pins the lyrics instead of generating them.
	Lyrics string `json:"lyrics" binding:"max=10000"`
}

// GenerationResponse is the job snapshot returned by submit and poll.
type GenerationResponse struct {
	ID        string       `json:"id"`
	RequestID string       `json:"request_id"`
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	Song      *domain.Song `json:"song,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// atoiDefault parses s as an int, falling back to def when s is empty or not
// a number.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = atoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = atoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// jobSnapshot renders a job (and its song, once completed) for the API.
func (h *Handlers) jobSnapshot(ctx context.Context, job *domain.GenerationJob) GenerationResponse {
	resp := GenerationResponse{
		ID:        job.ID,
		RequestID: job.RequestID,
		Status:    job.Status,
	}
	if job.Status == domain.JobStatusFailed {
		resp.Error = job.LastError
	}
	if job.Status == domain.JobStatusCompleted && job.SongID != nil {
		if song, err := repo.GetSong(ctx, h.db, *job.SongID); err == nil {
			resp.Song = song
		}
	}
	return resp
}

//
// Handlers
//

// SubmitGeneration accepts a generation request and records it durably.
//
// A fresh submission answers 202 with the pending job; resubmitting a known
// request_id answers 200 with the current state of the existing job, which
// may already include the finished song.
func (h *Handlers) SubmitGeneration(c *gin.Context) {
	var req SubmitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	job, err := h.queue.Submit(c.Request.Context(), workflow.Request{
		RequestID:    req.RequestID,
		UserID:       userID(c),
		Prompt:       strings.TrimSpace(req.Prompt),
		Instrumental: req.Instrumental,
		Lyrics:       req.Lyrics,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}

	status := http.StatusAccepted
	if job.Terminal() {
		status = http.StatusOK
	}
	ok(c, status, h.jobSnapshot(c.Request.Context(), job))
}

// GetGeneration returns the current state of one of the caller's jobs.
func (h *Handlers) GetGeneration(c *gin.Context) {
	job, err := repo.GetJob(c.Request.Context(), h.db, c.Param("id"), userID(c))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "generation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, h.jobSnapshot(c.Request.Context(), job))
}
