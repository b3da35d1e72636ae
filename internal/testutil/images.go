package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func fixture(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

// PNG returns an encoded PNG of the given size.
func PNG(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, fixture(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns an encoded JPEG of the given size.
func JPEG(width, height int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fixture(width, height), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIF returns an encoded GIF of the given size.
func GIF(width, height int) []byte {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, fixture(width, height), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BMP returns an encoded BMP of the given size.
func BMP(width, height int) []byte {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, fixture(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// TIFF returns an encoded TIFF of the given size.
func TIFF(width, height int) []byte {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, fixture(width, height), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
