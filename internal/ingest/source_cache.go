package ingest

import (
	"strings"
	"sync"
)

// SourceCache maps a source slug, the upsert identity, to its source id.
// Entries are advisory: a miss or a stale id falls through to the store
// upsert, so a cold cache resolves to the same id as a warm one.
type SourceCache struct {
	ids sync.Map
}

func NewSourceCache() *SourceCache {
	return &SourceCache{}
}

func (c *SourceCache) Get(slug string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	value, ok := c.ids.Load(cacheKey(slug))
	if !ok {
		return 0, false
	}
	return value.(int64), true
}

func (c *SourceCache) Put(slug string, sourceID int64) {
	if c == nil || sourceID <= 0 {
		return
	}
	c.ids.Store(cacheKey(slug), sourceID)
}

// Forget drops the entry for slug.
func (c *SourceCache) Forget(slug string) {
	if c == nil {
		return
	}
	c.ids.Delete(cacheKey(slug))
}

func cacheKey(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
