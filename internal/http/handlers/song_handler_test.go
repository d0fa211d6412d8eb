package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-music-backend/internal/domain"
	"github.com/tbourn/go-music-backend/internal/lease"
	"github.com/tbourn/go-music-backend/internal/repo"
	"github.com/tbourn/go-music-backend/internal/views"
)

func newSongRig(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := openHandlerDB(t)
	h := New(db, &fakeSubmitter{}, views.NewListVersions(), lease.New(stubIssuer{}, time.Hour, 10*time.Minute))
	r := gin.New()
	r.GET("/songs", h.ListSongs)
	return r, db
}

func getSongs(r *gin.Engine, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/songs", nil)
	req.Header.Set("X-User-ID", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListSongs_PaginationReflectsStats(t *testing.T) {
	r, db := newSongRig(t)

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateSong(context.Background(), db, &domain.Song{
			RequestID: uuid.NewString(),
			UserID:    "user123",
			Title:     "Track",
			AudioKey:  "audio/t.wav",
		}, nil); err != nil {
			t.Fatalf("CreateSong: %v", err)
		}
	}

	w := getSongs(r, "user123")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp ListSongsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}
	if len(resp.Songs) != 3 {
		t.Fatalf("songs = %d, want 3", len(resp.Songs))
	}
}

func TestListSongs_StatsErrorFailsRequest(t *testing.T) {
	r, db := newSongRig(t)

	// With the table gone the count query fails; the handler must refuse
	// to answer rather than report an empty listing as truth.
	if err := db.Exec("DROP TABLE songs").Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	w := getSongs(r, "user123")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s, want 500 when stats fail", w.Code, w.Body.String())
	}
}
