package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate_Success_ArrayCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["description"] != "dark techno" {
			t.Errorf("description = %v", req["description"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"s3_audio":   "audio/abc.wav",
			"s3_image":   "images/abc.png",
			"lyrics":     "[instrumental]",
			"categories": []string{"Techno", "Dark"},
			"prompt":     "Dark Techno Anthem",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Generate(context.Background(), "dark techno", true, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.AudioKey != "audio/abc.wav" || res.ImageKey != "images/abc.png" {
		t.Fatalf("keys = %q / %q", res.AudioKey, res.ImageKey)
	}
	if res.Title != "Dark Techno Anthem" {
		t.Fatalf("title = %q", res.Title)
	}
	if len(res.RawCategories) != 2 {
		t.Fatalf("categories = %v", res.RawCategories)
	}
}

func TestGenerate_StringCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"s3_audio":   "audio/x.wav",
			"categories": "Pop, Rock",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Generate(context.Background(), "p", false, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.RawCategories) != 1 || res.RawCategories[0] != "Pop, Rock" {
		t.Fatalf("categories = %v", res.RawCategories)
	}
	// Empty prompt field falls back to the submitted prompt.
	if res.Title != "p" {
		t.Fatalf("title = %q", res.Title)
	}
}

func TestGenerate_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gpu fell over", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), "p", false, "")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("err type = %T", err)
	}
	if !se.Retryable || se.Status != http.StatusBadGateway {
		t.Fatalf("err = %+v", se)
	}
	if !IsRetryable(err) {
		t.Fatal("IsRetryable = false")
	}
}

func TestGenerate_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), "p", false, "")
	var se *Error
	if !errors.As(err, &se) || se.Retryable {
		t.Fatalf("err = %v, want permanent synth.Error", err)
	}
}

func TestGenerate_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond)
	_, err := c.Generate(context.Background(), "p", false, "")
	if !IsRetryable(err) {
		t.Fatalf("timeout should be retryable, got %v", err)
	}
}

func TestGenerate_MissingAudioKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"s3_image": "images/only.png"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Generate(context.Background(), "p", false, "")
	if err == nil || IsRetryable(err) {
		t.Fatalf("err = %v, want permanent error", err)
	}
}
