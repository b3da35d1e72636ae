package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "simple endpoint no params",
			key:  CacheKey{Endpoint: "/objects/45734/"},
			want: "exhibit:objects/45734",
		},
		{
			name: "empty endpoint",
			key:  CacheKey{},
			want: "exhibit",
		},
		{
			name: "search with sorted query params",
			key: CacheKey{
				Endpoint: "search",
				Query: url.Values{
					"q":        []string{"flowers"},
					"hasImage": []string{"true"},
					"isOnView": []string{"true"},
					"title":    []string{"true"},
				},
			},
			want: "exhibit:search:hasImage=true:isOnView=true:q=flowers:title=true",
		},
		{
			name: "multi-valued query param",
			key: CacheKey{
				Endpoint: "search",
				Query:    url.Values{"q": []string{"sun", "moon"}},
			},
			want: "exhibit:search:q=sun,moon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	key := CacheKey{
		Endpoint: "search",
		Query: url.Values{
			"z": []string{"1"},
			"a": []string{"2"},
			"m": []string{"3"},
		},
	}

	first := key.String()
	for i := 0; i < 100; i++ {
		if got := key.String(); got != first {
			t.Fatalf("CacheKey.String() not deterministic: %v != %v", got, first)
		}
	}
}

func TestKeyForURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "search request",
			raw:  "https://collectionapi.metmuseum.org/public/collection/v1/search?q=flowers&title=true",
			want: "exhibit:collectionapi.metmuseum.org/public/collection/v1/search:q=flowers:title=true",
		},
		{
			name: "image on another host",
			raw:  "https://images.metmuseum.org/CRDImages/ep/web-large/DT1567.jpg",
			want: "exhibit:images.metmuseum.org/CRDImages/ep/web-large/DT1567.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}
			if got := KeyForURL(u).String(); got != tt.want {
				t.Errorf("KeyForURL(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestKeyForURL_QueryOrderIrrelevant(t *testing.T) {
	a, _ := url.Parse("https://example.test/search?q=x&title=true")
	b, _ := url.Parse("https://example.test/search?title=true&q=x")

	if KeyForURL(a).String() != KeyForURL(b).String() {
		t.Errorf("keys differ for equivalent queries: %v vs %v", KeyForURL(a), KeyForURL(b))
	}
}
