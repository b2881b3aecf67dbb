// Package cache provides a Redis-backed cache for normalized catalog records.
//
// Catalog lookups are slow and the upstream rate-limits aggressively, while a
// part's price breaks change rarely. The cache sits in front of a catalog.Source
// on the proxy side; the PartInfoClient itself never caches.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 6*time.Hour)
//
//	key := cache.CacheKey{Source: "jlcpcb", PartNumber: "C17168"}
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the catalog
//	}
//
// # Wrapping a Source
//
//	src := cache.NewSource(catalog.NewJLCPCB(cfg, logger), manager, "jlcpcb", logger)
//	info, err := src.Lookup(ctx, "C17168")
//
// Only successful lookups are cached. Not-found and upstream errors always go
// to the upstream again.
//
// # Metrics
//
//   - bom_cache_hits_total{layer="redis"} - Cache hits
//   - bom_cache_misses_total - Cache misses
//   - bom_cache_written_bytes_total{layer="redis"} - Bytes written to the cache
//   - bom_cache_errors_total{operation} - Cache operation errors
package cache
