package arya

import (
	"errors"
	"testing"
	"time"

	"github.com/eringen/arya/publish"
)

func TestListingCacheLoadsOnce(t *testing.T) {
	c := NewListingCache(8, time.Minute)
	calls := 0
	load := func() ([]publish.Document, error) {
		calls++
		return []publish.Document{{Name: "a.md"}}, nil
	}

	for i := 0; i < 3; i++ {
		docs, err := c.Get("o/r", "main", publish.Blog, load)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("expected 1 doc, got %d", len(docs))
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 load, got %d", calls)
	}

	c.Invalidate("o/r", "main", publish.Blog)
	if _, err := c.Get("o/r", "main", publish.Blog, load); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", calls)
	}
}

func TestListingCacheKeysByDirectory(t *testing.T) {
	c := NewListingCache(8, time.Minute)
	calls := 0
	load := func() ([]publish.Document, error) {
		calls++
		return nil, nil
	}
	c.Get("o/r", "main", publish.Blog, load)
	c.Get("o/r", "main", publish.Essay, load)
	c.Get("o/r", "dev", publish.Blog, load)
	if calls != 3 {
		t.Fatalf("expected separate entries per branch and directory, got %d loads", calls)
	}
}

func TestListingCacheSkipsFailures(t *testing.T) {
	c := NewListingCache(8, time.Minute)
	calls := 0
	load := func() ([]publish.Document, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("offline")
		}
		return []publish.Document{}, nil
	}
	if _, err := c.Get("o/r", "main", publish.Blog, load); err == nil {
		t.Fatalf("expected first load error")
	}
	if _, err := c.Get("o/r", "main", publish.Blog, load); err != nil {
		t.Fatalf("expected second load to succeed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected failure not to be cached, got %d loads", calls)
	}
}

func TestListingCacheExpires(t *testing.T) {
	c := NewListingCache(8, 50*time.Millisecond)
	calls := 0
	load := func() ([]publish.Document, error) {
		calls++
		return nil, nil
	}
	c.Get("o/r", "main", publish.Blog, load)
	time.Sleep(120 * time.Millisecond)
	c.Get("o/r", "main", publish.Blog, load)
	if calls != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", calls)
	}
}
