package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key written to Redis.
const KeyPrefix = "exhibit"

// CacheKey represents a unique identifier for a cached catalog response.
type CacheKey struct {
	// Endpoint is the path of the request relative to the catalog base
	// (e.g. "search" or "objects/45734").
	Endpoint string

	// Query holds the request's query parameters.
	Query url.Values
}

// KeyForURL builds a cache key from a request URL. The host is kept so that
// image URLs on different hosts never collide.
func KeyForURL(u *url.URL) CacheKey {
	endpoint := strings.TrimPrefix(u.Host+u.EscapedPath(), "/")
	return CacheKey{
		Endpoint: endpoint,
		Query:    u.Query(),
	}
}

// String generates a deterministic cache key string.
// Format: exhibit:endpoint:query1=val1:query2=val2a,val2b
//
// Example:
//
//	exhibit:collectionapi.metmuseum.org/public/collection/v1/search:hasImage=true:q=flowers
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
		}
	}

	return strings.Join(parts, ":")
}
