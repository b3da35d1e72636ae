// Package cache provides a Redis-backed cache for catalog HTTP responses.
//
// Entries carry the response body together with its freshness information:
//
//   - Cache-Control max-age and Expires decide when an entry goes stale
//   - ETag and Last-Modified are kept for conditional requests
//   - stale entries with a validator stay in Redis for a retention window
//     so they can be revalidated with a 304 instead of a full download
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//	key := cache.KeyForURL(req.URL)
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch from the catalog
//	case err == nil && !entry.IsExpired():
//		// serve from cache
//	case err == nil:
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Storing Responses
//
//	if cache.IsCacheable(resp) {
//		entry, err := cache.ResponseToEntry(resp, maxBodyBytes)
//		if err != nil {
//			return err
//		}
//		if err := manager.Set(ctx, key, entry); err != nil {
//			return err
//		}
//	}
//
// # Metrics
//
//   - exhibit_cache_hits_total{freshness} - Cache hits (fresh or stale)
//   - exhibit_cache_misses_total - Cache misses
//   - exhibit_cache_stored_bytes_total - Bytes written
//   - exhibit_cache_304_responses_total - Successful revalidations
//   - exhibit_cache_errors_total{operation} - Cache operation errors
//
// The cache is a transport optimisation. Fetched detail records are never
// persisted beyond their HTTP freshness window.
package cache
