package cache

import (
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
)

// CacheEntry is a cached catalog record.
type CacheEntry struct {
	// Info is the normalized record.
	Info *bom.PartInfo `json:"info"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this record.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry wraps info in an entry that expires after ttl.
func NewEntry(info *bom.PartInfo, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Info:     info,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
