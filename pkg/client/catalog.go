package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public collection API of the museum catalog.
const DefaultBaseURL = "https://collectionapi.metmuseum.org/public/collection/v1"

// UnavailableImageURL marks an item without an image. Resolving it never
// touches the network.
const UnavailableImageURL = "unavailableImage"

// ExhibitSummary is the result of a search: the ids of every matching object.
type ExhibitSummary struct {
	Total     int   `json:"total"`
	ObjectIDs []int `json:"objectIDs"`
}

// Artifact is the detail record of one catalog object.
type Artifact struct {
	ObjectID  int     `json:"objectID"`
	ImageURL  *string `json:"primaryImageSmall"`
	Title     string  `json:"title"`
	ObjectURL string  `json:"objectURL"`
}

// Equal reports whether two artifacts have identical fields.
func (a Artifact) Equal(b Artifact) bool {
	if a.ObjectID != b.ObjectID || a.Title != b.Title || a.ObjectURL != b.ObjectURL {
		return false
	}
	if a.ImageURL == nil || b.ImageURL == nil {
		return a.ImageURL == nil && b.ImageURL == nil
	}
	return *a.ImageURL == *b.ImageURL
}

// HasImage reports whether the artifact carries a non-empty image URL.
func (a Artifact) HasImage() bool {
	return a.ImageURL != nil && *a.ImageURL != ""
}

// ImageSource returns the image URL, or UnavailableImageURL when there is none.
func (a Artifact) ImageSource() string {
	if !a.HasImage() {
		return UnavailableImageURL
	}
	return *a.ImageURL
}

// FetchSummary searches on-view objects with images whose title matches query.
func (c *Client) FetchSummary(ctx context.Context, query string) (*ExhibitSummary, error) {
	params := url.Values{}
	params.Set("title", "true")
	params.Set("isOnView", "true")
	params.Set("hasImage", "true")
	params.Set("q", query)

	data, err := c.fetch(ctx, "search", func() (*http.Response, error) {
		return c.Get(ctx, "search", params)
	})
	if err != nil {
		return nil, err
	}

	var summary ExhibitSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, &CatalogError{Kind: InvalidParse, Op: "search", Err: err}
	}
	if summary.ObjectIDs == nil {
		summary.ObjectIDs = []int{}
	}

	c.logger.Debug().
		Str("query", query).
		Int("total", summary.Total).
		Int("ids", len(summary.ObjectIDs)).
		Msg("Fetched exhibit summary")

	return &summary, nil
}

// FetchDetail retrieves the detail record of one object.
func (c *Client) FetchDetail(ctx context.Context, objectID int) (*Artifact, error) {
	op := "objects/" + strconv.Itoa(objectID)

	data, err := c.fetch(ctx, op, func() (*http.Response, error) {
		return c.Get(ctx, op, nil)
	})
	if err != nil {
		return nil, err
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, &CatalogError{Kind: InvalidParse, Op: op, Err: err}
	}

	return &artifact, nil
}

// FetchImage downloads the raw bytes behind an absolute image URL.
// The sentinel UnavailableImageURL, an empty string or a non-absolute URL
// fail with UnavailableImage without any request.
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" || rawURL == UnavailableImageURL {
		return nil, &CatalogError{Kind: UnavailableImage, Op: "image"}
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, &CatalogError{Kind: UnavailableImage, Op: "image", Err: err}
	}

	return c.fetch(ctx, "image", func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "image/*")
		return c.Do(req)
	})
}

// fetch runs do and maps its outcome onto the ErrorKind taxonomy.
// Only a 200 response with a non-empty body succeeds.
func (c *Client) fetch(ctx context.Context, op string, do func() (*http.Response, error)) ([]byte, error) {
	start := time.Now()

	resp, err := do()
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, &CatalogError{Kind: InvalidResponse, StatusCode: statusErr.StatusCode, Op: op, Err: err}
		}
		return nil, &CatalogError{Kind: UnableToComplete, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &CatalogError{Kind: InvalidResponse, StatusCode: resp.StatusCode, Op: op}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &CatalogError{Kind: UnableToComplete, Op: op, Err: err}
		}
		return nil, &CatalogError{Kind: InvalidData, StatusCode: resp.StatusCode, Op: op, Err: err}
	}
	if len(data) == 0 {
		return nil, &CatalogError{Kind: InvalidData, StatusCode: resp.StatusCode, Op: op}
	}

	c.logger.Debug().
		Str("op", op).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Catalog fetch complete")

	return data, nil
}
