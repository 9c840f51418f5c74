// SPDX-License-Identifier: GPL-3.0-only

// Package luma measures how bright the displayed content is.
package luma

import (
	"image"
	"math"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

// sampleWidth is the width screenshots are reduced to before measuring.
const sampleWidth = 64

// Source reports the luminance of the content currently on screen.
type Source interface {
	Luminance() controller.Luminance
}

// None is used when content luminance is not measured.
type None struct{}

// Luminance always reports absent luminance.
func (None) Luminance() controller.Luminance {
	return controller.NoLuminance
}

// File measures a screenshot that an external tool (grim, spectacle, ...)
// periodically writes to disk. The decoded value is cached until the file
// changes.
type File struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  controller.Luminance
}

// NewFile returns a source reading the screenshot at path.
func NewFile(path string) *File {
	return &File{path: path, cached: controller.NoLuminance}
}

// Luminance returns the lightness of the latest screenshot, or absent
// luminance when the file is missing or cannot be decoded.
func (f *File) Luminance() controller.Luminance {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		log.Debug().Err(err).Str("path", f.path).Msg("Screenshot not available")
		f.reset()
		return controller.NoLuminance
	}
	if info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.cached
	}

	img, err := imaging.Open(f.path)
	if err != nil {
		log.Debug().Err(err).Str("path", f.path).Msg("Failed to decode screenshot")
		f.reset()
		return controller.NoLuminance
	}

	f.modTime, f.size = info.ModTime(), info.Size()
	f.cached = controller.Luma(Compute(img))
	return f.cached
}

func (f *File) reset() {
	f.modTime, f.size = time.Time{}, 0
	f.cached = controller.NoLuminance
}

// Compute returns the mean perceived lightness of img as a percentage. Pixels
// are converted from sRGB to Rec. 709 relative luminance and then to CIE L*.
func Compute(img image.Image) uint8 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}
	if bounds.Dx() > sampleWidth {
		img = imaging.Resize(img, sampleWidth, 0, imaging.Box)
		bounds = img.Bounds()
	}

	var total float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			total += lightness(0.2126*linear(r) + 0.7152*linear(g) + 0.0722*linear(b))
		}
	}

	mean := total / float64(bounds.Dx()*bounds.Dy())
	return uint8(math.Round(math.Min(math.Max(mean, 0), 100)))
}

// linear converts a 16-bit sRGB channel to linear light.
func linear(c uint32) float64 {
	v := float64(c) / 0xffff
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// lightness converts relative luminance to CIE L*.
func lightness(y float64) float64 {
	if y <= 216.0/24389 {
		return y * 24389 / 27
	}
	return 116*math.Cbrt(y) - 16
}
