package storage

import (
	"sync"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

// Fingerprint identifies one version of a file without hashing its content.
type Fingerprint struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Matches reports whether two fingerprints describe the same file version.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.Path == other.Path && f.ModTime.Equal(other.ModTime) && f.Size == other.Size
}

// DocumentCache memoizes the last parsed document. An identical fingerprint
// is a hit; anything else is a miss and the next Put replaces the entry.
// Get and Put copy the document so callers may mutate what they receive.
type DocumentCache struct {
	mu    sync.Mutex
	fp    Fingerprint
	doc   *models.TickFile
	hits  int
	total int
}

// NewDocumentCache returns an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{}
}

// Get returns a copy of the cached document if fp matches the cached entry.
func (c *DocumentCache) Get(fp Fingerprint) (*models.TickFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if c.doc == nil || !c.fp.Matches(fp) {
		return nil, false
	}
	c.hits++
	return c.doc.Clone(), true
}

// Put replaces the cached entry.
func (c *DocumentCache) Put(fp Fingerprint, doc *models.TickFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fp = fp
	c.doc = doc.Clone()
}

// Invalidate drops the cached entry.
func (c *DocumentCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fp = Fingerprint{}
	c.doc = nil
}

// Stats returns the number of hits and lookups so far.
func (c *DocumentCache) Stats() (hits, lookups int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.total
}
