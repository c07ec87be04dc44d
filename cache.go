package arya

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eringen/arya/publish"
)

// ListingCache keeps published-document listings per repository directory
// for a short TTL. Publishing into a directory invalidates it.
type ListingCache struct {
	lru *expirable.LRU[string, []publish.Document]
}

// NewListingCache creates a cache holding at most size listings for ttl.
func NewListingCache(size int, ttl time.Duration) *ListingCache {
	if size <= 0 {
		size = 64
	}
	return &ListingCache{lru: expirable.NewLRU[string, []publish.Document](size, nil, ttl)}
}

func listingKey(repo, branch string, ct publish.ContentType) string {
	return repo + "@" + branch + ":" + ct.Directory()
}

// Get returns a cached listing, loading and storing it on a miss. Failed
// loads are not cached.
func (c *ListingCache) Get(repo, branch string, ct publish.ContentType, load func() ([]publish.Document, error)) ([]publish.Document, error) {
	key := listingKey(repo, branch, ct)
	if docs, ok := c.lru.Get(key); ok {
		return docs, nil
	}
	docs, err := load()
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, docs)
	return docs, nil
}

// Invalidate drops the listing for the directory of ct.
func (c *ListingCache) Invalidate(repo, branch string, ct publish.ContentType) {
	c.lru.Remove(listingKey(repo, branch, ct))
}

// Purge drops every listing.
func (c *ListingCache) Purge() {
	c.lru.Purge()
}
