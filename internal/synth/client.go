// Package synth is the HTTP client for the external music synthesis backend.
// It submits a content description and returns the storage keys of the
// produced media, classifying failures as retryable (connectivity, 5xx,
// timeout) or permanent (4xx) so the workflow engine can decide whether a
// retry is worth anything.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error is a typed failure from the synthesis backend.
type Error struct {
	// Status is the HTTP status code, or 0 for transport-level failures.
	Status int
	// Retryable marks the transient class: connectivity errors, timeouts,
	// and 5xx responses. 4xx responses (malformed input, quota) are permanent.
	Retryable bool
	// Message is a short human-readable cause.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("synthesis failed: status %d: %s", e.Status, e.Message)
	}
	return "synthesis failed: " + e.Message
}

// IsRetryable reports whether err is a synth.Error of the transient class.
func IsRetryable(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Retryable
}

// Result is the normalized output of one synthesis call. Categories arrive
// from the backend either as a list or a comma-joined string; both are kept
// raw here and normalized by the workflow's pure normalization step.
type Result struct {
	AudioKey      string
	ImageKey      string
	Lyrics        string
	RawCategories []string
	Title         string
}

// request is the wire payload the backend expects.
type request struct {
	Description  string `json:"description"`
	Instrumental bool   `json:"instrumental"`
	Lyrics       string `json:"lyrics"`
}

// response mirrors the backend's JSON output. categories may be a string or
// an array depending on the model's mood, hence json.RawMessage.
type response struct {
	S3Audio    string          `json:"s3_audio"`
	S3Image    string          `json:"s3_image"`
	Lyrics     string          `json:"lyrics"`
	Categories json.RawMessage `json:"categories"`
	Prompt     string          `json:"prompt"`
}

// Client calls the synthesis backend over HTTP.
type Client struct {
	url  string
	http *http.Client
}

// NewClient constructs a Client for the given endpoint URL. timeout caps each
// call end to end; exceeding it surfaces as a retryable Error.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Generate submits one synthesis request and blocks until the backend
// responds or the timeout elapses. On success the returned Result carries
// the object-storage keys of the produced audio and cover image.
func (c *Client) Generate(ctx context.Context, prompt string, instrumental bool, lyrics string) (*Result, error) {
	body, err := json.Marshal(request{
		Description:  prompt,
		Instrumental: instrumental,
		Lyrics:       lyrics,
	})
	if err != nil {
		return nil, &Error{Retryable: false, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Retryable: false, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures and client-side timeouts are transient.
		return nil, &Error{Retryable: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readShort(resp.Body)
		return nil, &Error{
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode >= 500,
			Message:   msg,
		}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Status: resp.StatusCode, Retryable: false, Message: "malformed response: " + err.Error()}
	}
	if out.S3Audio == "" {
		return nil, &Error{Status: resp.StatusCode, Retryable: false, Message: "response missing audio key"}
	}

	title := out.Prompt
	if title == "" {
		title = prompt
	}
	return &Result{
		AudioKey:      out.S3Audio,
		ImageKey:      out.S3Image,
		Lyrics:        out.Lyrics,
		RawCategories: decodeCategories(out.Categories),
		Title:         title,
	}, nil
}

// decodeCategories accepts both wire shapes: a JSON array of strings or a
// single comma-joined string. Anything else yields nil (the normalization
// step then falls back to the default category).
func decodeCategories(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		if joined == "" {
			return nil
		}
		return []string{joined}
	}
	return nil
}

// readShort drains up to 1 KiB of the body for error messages.
func readShort(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return string(bytes.TrimSpace(b))
}
