// Package imagecache resolves image URLs to decoded images and keeps the
// results in a bounded in-memory LRU.
//
// A Coordinator serialises all cache and surface bookkeeping on one
// goroutine. Fetching and decoding happen elsewhere and post their results
// back, so callbacks and Surface.SetImage always run on the coordinator
// goroutine.
//
// Assign ties a load to a Surface. Assigning again, or calling Cancel,
// abandons the earlier load; a late completion of an abandoned load is
// dropped, so a surface always ends up showing its most recent assignment.
//
// The URL client.UnavailableImageURL (and the empty URL) resolve to an
// UnavailableImage error without touching the network.
package imagecache
