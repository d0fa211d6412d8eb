// Song HTTP handlers.
//
// This file exposes REST endpoints for song resources:
//   - GET /songs                  (owner's list, paginated, ETag support)
//   - GET /songs/latest           (published feed, paginated)
//   - GET /songs/{id}/stream-url  (signed playback URL, owner or published)
//   - PUT /songs/{id}/publish     (owner toggles visibility)
//
// Stored songs reference private object keys, never URLs; playback and cover
// access always goes through the lease cache so a fresh signed URL is issued
// only when the cached one is close to expiry.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-music-backend/internal/domain"
	"github.com/tbourn/go-music-backend/internal/http/middleware"
	"github.com/tbourn/go-music-backend/internal/repo"
)

//
// DTOs
//

// ListSongsResponse wraps a page of the caller's songs and pagination info.
type ListSongsResponse struct {
	Songs      []domain.Song `json:"songs"`
	Pagination Pagination    `json:"pagination"`
}

// FeedItem is one entry of the published feed: the song plus a signed cover
// image URL when the song has one.
type FeedItem struct {
	domain.Song
	ImageURL string `json:"image_url,omitempty"`
}

// FeedResponse wraps a page of the published feed.
type FeedResponse struct {
	Songs      []FeedItem `json:"songs"`
	Pagination Pagination `json:"pagination"`
}

// StreamURLResponse carries a signed playback URL and its remaining validity.
type StreamURLResponse struct {
	URL string `json:"url"`
	// ExpiresIn is a conservative validity window in seconds: the lease
	// safety margin guarantees at least this long before the URL expires.
	ExpiresIn int64 `json:"expires_in"`
}

// PublishRequest is the JSON payload for toggling a song's visibility.
type PublishRequest struct {
	Published *bool `json:"published" binding:"required"`
}

//
// Handlers
//

// ListSongs returns a page of the caller's songs, newest first.
//
// Supports weak ETags: the tag folds in the per-user listing version (bumped
// by the workflow on every committed generation) together with row count and
// last update time, so If-None-Match turns into a 304 exactly until the
// listing actually changes.
func (h *Handlers) ListSongs(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// The stats drive both the ETag and the pagination totals, so a failure
	// here fails the request rather than serving a page with bogus counts.
	count, maxTS, err := repo.SongsStats(ctx, h.db, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"songs:%s:%d:%d:%d"`, uid, h.views.Get(uid), count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items, err := repo.ListSongsPage(ctx, h.db, uid, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	total := count
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSongsResponse{
		Songs: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// LatestSongs returns a page of the public feed: published songs with audio,
// newest first. Cover image URLs are resolved through the lease cache; songs
// without a cover are served without one.
func (h *Handlers) LatestSongs(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := repo.CountPublishedSongs(ctx, h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	songs, err := repo.ListPublishedPage(ctx, h.db, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	identity := userID(c)
	if identity == "" {
		identity = "public"
	}
	items := make([]FeedItem, 0, len(songs))
	for _, s := range songs {
		item := FeedItem{Song: s}
		if s.ImageKey != "" {
			if url, uerr := h.leases.GetURL(ctx, identity, s.ImageKey); uerr == nil {
				item.ImageURL = url
			} else {
				lg := middleware.LoggerFrom(c)
				lg.Warn().Err(uerr).Str("song_id", s.ID).Msg("cover url issuance failed")
			}
		}
		items = append(items, item)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, FeedResponse{
		Songs: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// StreamURL returns a signed playback URL for a song the caller may access:
// their own, or anyone's once published. Playback by someone other than the
// owner counts as a listen.
func (h *Handlers) StreamURL(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	song, err := repo.GetAccessibleSong(ctx, h.db, c.Param("id"), uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "song not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if song.AudioKey == "" {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "song has no audio")
		return
	}

	url, err := h.leases.GetURL(ctx, uid, song.AudioKey)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStreamFailed, "could not issue stream url")
		return
	}

	if song.UserID != uid {
		// Listen counting is bookkeeping; a failed increment must not block
		// playback.
		if ierr := repo.IncrementListenCount(ctx, h.db, song.ID); ierr != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(ierr).Str("song_id", song.ID).Msg("listen count increment failed")
		}
	}

	ok(c, http.StatusOK, StreamURLResponse{
		URL:       url,
		ExpiresIn: int64((h.leases.TTL - h.leases.SafetyMargin).Seconds()),
	})
}

// PublishSong sets a song's published flag. Owner only; publishing feeds the
// song into /songs/latest, unpublishing withdraws it.
func (h *Handlers) PublishSong(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid := userID(c)

	err := repo.SetPublished(c.Request.Context(), h.db, c.Param("id"), uid, *req.Published)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "song not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	h.views.Bump(uid)
	noContent(c)
}
