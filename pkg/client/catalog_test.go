package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/exhibit-client/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestArtifact_Equal(t *testing.T) {
	base := Artifact{ObjectID: 1, ImageURL: strPtr("https://img/1.jpg"), Title: "Vase", ObjectURL: "https://obj/1"}

	tests := []struct {
		name  string
		other Artifact
		want  bool
	}{
		{name: "identical", other: Artifact{ObjectID: 1, ImageURL: strPtr("https://img/1.jpg"), Title: "Vase", ObjectURL: "https://obj/1"}, want: true},
		{name: "different id", other: Artifact{ObjectID: 2, ImageURL: strPtr("https://img/1.jpg"), Title: "Vase", ObjectURL: "https://obj/1"}, want: false},
		{name: "different image", other: Artifact{ObjectID: 1, ImageURL: strPtr("https://img/2.jpg"), Title: "Vase", ObjectURL: "https://obj/1"}, want: false},
		{name: "nil image", other: Artifact{ObjectID: 1, Title: "Vase", ObjectURL: "https://obj/1"}, want: false},
		{name: "different title", other: Artifact{ObjectID: 1, ImageURL: strPtr("https://img/1.jpg"), Title: "Bowl", ObjectURL: "https://obj/1"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}

	if !(Artifact{ObjectID: 3}).Equal(Artifact{ObjectID: 3}) {
		t.Error("Equal() with both images nil = false, want true")
	}
}

func TestArtifact_ImageSource(t *testing.T) {
	tests := []struct {
		name     string
		imageURL *string
		want     string
		hasImage bool
	}{
		{name: "nil", imageURL: nil, want: UnavailableImageURL, hasImage: false},
		{name: "empty", imageURL: strPtr(""), want: UnavailableImageURL, hasImage: false},
		{name: "present", imageURL: strPtr("https://img/1.jpg"), want: "https://img/1.jpg", hasImage: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Artifact{ImageURL: tt.imageURL}
			if got := a.ImageSource(); got != tt.want {
				t.Errorf("ImageSource() = %q, want %q", got, tt.want)
			}
			if got := a.HasImage(); got != tt.hasImage {
				t.Errorf("HasImage() = %v, want %v", got, tt.hasImage)
			}
		})
	}
}

func TestFetchSummary(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.AddSearch("flowers", 5, 3, 9)

	client := newTestClient(t, mock.URL(), nil)

	summary, err := client.FetchSummary(context.Background(), "flowers")
	if err != nil {
		t.Fatalf("FetchSummary() error = %v", err)
	}
	if summary.Total != 3 {
		t.Errorf("Total = %d, want 3", summary.Total)
	}
	want := []int{5, 3, 9}
	if len(summary.ObjectIDs) != len(want) {
		t.Fatalf("ObjectIDs = %v, want %v", summary.ObjectIDs, want)
	}
	for i := range want {
		if summary.ObjectIDs[i] != want[i] {
			t.Errorf("ObjectIDs[%d] = %d, want %d", i, summary.ObjectIDs[i], want[i])
		}
	}
}

func TestFetchSummary_QueryFlags(t *testing.T) {
	var query map[string]string
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetHandler(testutil.SearchPath(), func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"total": 0, "objectIDs": null}`))
	})

	client := newTestClient(t, mock.URL(), nil)

	summary, err := client.FetchSummary(context.Background(), "sun flower")
	if err != nil {
		t.Fatalf("FetchSummary() error = %v", err)
	}
	if summary.ObjectIDs == nil || len(summary.ObjectIDs) != 0 {
		t.Errorf("ObjectIDs = %v, want empty non-nil slice", summary.ObjectIDs)
	}

	wantFlags := map[string]string{"title": "true", "isOnView": "true", "hasImage": "true", "q": "sun flower"}
	for k, v := range wantFlags {
		if query[k] != v {
			t.Errorf("query %s = %q, want %q", k, query[k], v)
		}
	}
}

func TestFetchDetail(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.AddObject(45734, "Quail and Millet", strPtr("https://images.example/45734.jpg"))
	mock.AddObject(1, "No picture", nil)

	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	artifact, err := client.FetchDetail(ctx, 45734)
	if err != nil {
		t.Fatalf("FetchDetail() error = %v", err)
	}
	if artifact.ObjectID != 45734 || artifact.Title != "Quail and Millet" {
		t.Errorf("FetchDetail() = %+v", artifact)
	}
	if artifact.ImageSource() != "https://images.example/45734.jpg" {
		t.Errorf("ImageSource() = %q", artifact.ImageSource())
	}
	if artifact.ObjectURL == "" {
		t.Error("ObjectURL is empty")
	}

	noImage, err := client.FetchDetail(ctx, 1)
	if err != nil {
		t.Fatalf("FetchDetail() error = %v", err)
	}
	if noImage.ImageURL != nil {
		t.Errorf("ImageURL = %v, want nil", *noImage.ImageURL)
	}
}

func TestFetch_ErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantKind   ErrorKind
		wantStatus int
	}{
		{
			name:       "not found",
			response:   testutil.MockResponse{StatusCode: http.StatusNotFound, Body: `{"message": "ObjectID not found"}`},
			wantKind:   InvalidResponse,
			wantStatus: 404,
		},
		{
			name:       "persistent server error",
			response:   testutil.NewServerErrorResponse(),
			wantKind:   InvalidResponse,
			wantStatus: 500,
		},
		{
			name:     "empty body",
			response: testutil.MockResponse{StatusCode: http.StatusOK},
			wantKind: InvalidData,
		},
		{
			name:     "malformed json",
			response: testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"objectID": "not a number"`},
			wantKind: InvalidParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog()
			defer mock.Close()
			mock.SetResponse(testutil.ObjectPath(7), tt.response)

			client := newTestClient(t, mock.URL(), nil)

			_, err := client.FetchDetail(context.Background(), 7)
			if err == nil {
				t.Fatal("FetchDetail() error = nil")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %q, want %q (err: %v)", got, tt.wantKind, err)
			}
			var catalogErr *CatalogError
			if errors.As(err, &catalogErr) && catalogErr.StatusCode != tt.wantStatus && tt.wantStatus != 0 {
				t.Errorf("StatusCode = %d, want %d", catalogErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	mock := testutil.NewMockCatalog()
	baseURL := mock.URL()
	mock.Close()

	client := newTestClient(t, baseURL, nil)

	_, err := client.FetchSummary(context.Background(), "flowers")
	if !errors.Is(err, ErrUnableToComplete) {
		t.Errorf("FetchSummary() error = %v, want UnableToComplete", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.AddObject(1, "Slow", nil)
	mock.SetDelay(testutil.ObjectPath(1), time.Second)

	client := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchDetail(ctx, 1)
	if !errors.Is(err, ErrUnableToComplete) {
		t.Errorf("FetchDetail() error = %v, want UnableToComplete", err)
	}
}

func TestFetchImage(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	png := testutil.PNG(4, 3)
	imageURL := mock.AddImage("vase.png", png)

	client := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	data, err := client.FetchImage(ctx, imageURL)
	if err != nil {
		t.Fatalf("FetchImage() error = %v", err)
	}
	if !bytes.Equal(data, png) {
		t.Error("FetchImage() returned different bytes")
	}

	_, err = client.FetchImage(ctx, mock.ImageURL("missing.png"))
	if KindOf(err) != InvalidResponse {
		t.Errorf("FetchImage(missing) kind = %q, want %q", KindOf(err), InvalidResponse)
	}
}

func TestFetchImage_UnavailableWithoutRequest(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	client := newTestClient(t, mock.URL(), nil)

	for _, raw := range []string{"", UnavailableImageURL, "relative/path.jpg"} {
		_, err := client.FetchImage(context.Background(), raw)
		if !errors.Is(err, ErrUnavailableImage) {
			t.Errorf("FetchImage(%q) error = %v, want UnavailableImage", raw, err)
		}
	}

	if mock.GetRequestCount() != 0 {
		t.Errorf("Server saw %d requests, want 0", mock.GetRequestCount())
	}
}
