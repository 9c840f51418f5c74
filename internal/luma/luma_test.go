// SPDX-License-Identifier: GPL-3.0-only

package luma_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
	"github.com/shini4i/asd-adaptive-brightness/internal/luma"
)

func uniform(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		expected uint8
	}{
		{
			name:     "black",
			img:      uniform(16, 16, color.Black),
			expected: 0,
		},
		{
			name:     "white",
			img:      uniform(16, 16, color.White),
			expected: 100,
		},
		{
			name:     "middle grey",
			img:      uniform(16, 16, color.RGBA{R: 119, G: 119, B: 119, A: 255}),
			expected: 50,
		},
		{
			name:     "large white image is downsampled",
			img:      uniform(640, 360, color.White),
			expected: 100,
		},
		{
			name:     "empty image",
			img:      image.NewRGBA(image.Rect(0, 0, 0, 0)),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, luma.Compute(tt.img), 1)
		})
	}
}

func TestCompute_GreenIsBrighterThanBlue(t *testing.T) {
	green := luma.Compute(uniform(8, 8, color.RGBA{G: 255, A: 255}))
	blue := luma.Compute(uniform(8, 8, color.RGBA{B: 255, A: 255}))

	assert.Greater(t, green, blue)
}

func TestCompute_HalfWhiteHalfBlack(t *testing.T) {
	img := uniform(32, 32, color.Black)
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.White)
		}
	}

	assert.Equal(t, uint8(50), luma.Compute(img))
}

func TestNone(t *testing.T) {
	assert.Equal(t, controller.NoLuminance, luma.None{}.Luminance())
}

func TestFile_Luminance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.png")
	source := luma.NewFile(path)

	assert.False(t, source.Luminance().Present(), "missing file yields absent luminance")

	require.NoError(t, imaging.Save(uniform(32, 32, color.White), path))
	assert.Equal(t, controller.Luma(100), source.Luminance())

	// A newer screenshot replaces the cached value.
	require.NoError(t, imaging.Save(uniform(32, 32, color.Black), path))
	later := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.Equal(t, controller.Luma(0), source.Luminance())
}

func TestFile_UndecodableScreenshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	assert.Equal(t, controller.NoLuminance, luma.NewFile(path).Luminance())
}
