package views

import (
	"context"
	"sync"
	"testing"
)

func TestListVersions_BumpAndGet(t *testing.T) {
	v := NewListVersions()
	if got := v.Get("u1"); got != 0 {
		t.Fatalf("initial version = %d, want 0", got)
	}
	v.Bump("u1")
	v.Bump("u1")
	if got := v.Get("u1"); got != 2 {
		t.Fatalf("version = %d, want 2", got)
	}
	if got := v.Get("u2"); got != 0 {
		t.Fatalf("other user version = %d, want 0", got)
	}
}

func TestListVersions_InvalidateNeverFails(t *testing.T) {
	v := NewListVersions()
	if err := v.Invalidate(context.Background(), "u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if got := v.Get("u1"); got != 1 {
		t.Fatalf("version = %d, want 1", got)
	}
}

func TestListVersions_ConcurrentBumps(t *testing.T) {
	v := NewListVersions()
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Bump("u1")
		}()
	}
	wg.Wait()
	if got := v.Get("u1"); got != n {
		t.Fatalf("version = %d, want %d", got, n)
	}
}
