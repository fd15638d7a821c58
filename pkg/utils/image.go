// Package utils provides shared utilities for images, math, and logging.
package utils

import (
	"image"

	"golang.org/x/image/draw"
)

// Downsample scales img so that its longest side is at most maxDim pixels,
// preserving aspect ratio. Images already within bounds (or maxDim <= 0) are
// returned unchanged.
func Downsample(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	var nw, nh int
	if w >= h {
		nw = maxDim
		nh = h * maxDim / w
	} else {
		nh = maxDim
		nw = w * maxDim / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
