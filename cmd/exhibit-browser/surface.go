package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/imagecache"
)

var (
	placeholderImage = &imagecache.Image{URL: "placeholder", Format: "placeholder"}
	unavailableImage = &imagecache.Image{URL: client.UnavailableImageURL, Format: "unavailable"}
)

// console serialises writes from the command loop and the background
// goroutines of the orchestrator and image coordinator.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// terminalSurface prints the image metadata of the current item.
type terminalSurface struct {
	console *console

	mu      sync.Mutex
	current *imagecache.Image
}

// SetImage implements imagecache.Surface.
func (s *terminalSurface) SetImage(img *imagecache.Image) {
	s.mu.Lock()
	s.current = img
	s.mu.Unlock()

	switch img {
	case placeholderImage:
		s.console.Printf("  image: loading...\n")
	case unavailableImage, nil:
		s.console.Printf("  image: %s\n", client.UnavailableImage.Message())
	default:
		s.console.Printf("  image: %s %s\n", img, img.URL)
	}
}

// Current returns the last image shown.
func (s *terminalSurface) Current() *imagecache.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
