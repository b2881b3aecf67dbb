package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/bom-enricher/pkg/bom"
	"github.com/Sternrassler/bom-enricher/pkg/catalog"
	"github.com/rs/zerolog"
)

// EntryStore is the part of Manager used by Source.
type EntryStore interface {
	Get(ctx context.Context, key CacheKey) (*CacheEntry, error)
	Set(ctx context.Context, key CacheKey, entry *CacheEntry) error
	TTL() time.Duration
}

// Source is a catalog.Source that serves successful lookups from Redis.
// Cache failures are logged and fall through to the wrapped source.
type Source struct {
	next    catalog.Source
	manager EntryStore
	name    string
	logger  zerolog.Logger
}

// NewSource wraps next with the cache. name namespaces the keys.
func NewSource(next catalog.Source, manager EntryStore, name string, logger zerolog.Logger) *Source {
	return &Source{
		next:    next,
		manager: manager,
		name:    name,
		logger:  logger,
	}
}

// Lookup implements catalog.Source.
func (s *Source) Lookup(ctx context.Context, partNumber string) (*bom.PartInfo, error) {
	key := CacheKey{Source: s.name, PartNumber: partNumber}

	entry, err := s.manager.Get(ctx, key)
	switch {
	case err == nil:
		s.logger.Debug().Str("part_number", partNumber).Bool("cache_hit", true).Msg("Served part from cache")
		return entry.Info, nil
	case !errors.Is(err, ErrCacheMiss):
		s.logger.Warn().Err(err).Str("part_number", partNumber).Msg("Cache get error")
	}

	info, err := s.next.Lookup(ctx, partNumber)
	if err != nil {
		return nil, err
	}

	if err := s.manager.Set(ctx, key, NewEntry(info, s.manager.TTL())); err != nil {
		s.logger.Warn().Err(err).Str("part_number", partNumber).Msg("Failed to cache part")
	} else {
		s.logger.Debug().
			Str("part_number", partNumber).
			Dur("ttl", s.manager.TTL()).
			Msg("Cached part")
	}
	return info, nil
}
