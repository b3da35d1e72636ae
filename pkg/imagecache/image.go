package imagecache

import (
	"bytes"
	"fmt"
	"image"

	// Registered formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Sternrassler/exhibit-client/pkg/client"
)

// Image is a decoded, displayable image. Cached images are shared; callers
// must not modify Data.
type Image struct {
	URL    string
	Data   []byte
	Format string
	Width  int
	Height int
}

// String implements fmt.Stringer.
func (img *Image) String() string {
	if img == nil {
		return "<no image>"
	}
	return fmt.Sprintf("%s %dx%d (%d bytes)", img.Format, img.Width, img.Height, len(img.Data))
}

// Decode validates that data is a complete image in a registered format
// (jpeg, png, gif, webp, bmp, tiff). Undecodable data is InvalidData.
func Decode(url string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, &client.CatalogError{Kind: client.InvalidData, Op: "image"}
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &client.CatalogError{Kind: client.InvalidData, Op: "image", Err: fmt.Errorf("decode: %w", err)}
	}

	bounds := decoded.Bounds()
	return &Image{
		URL:    url,
		Data:   data,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
