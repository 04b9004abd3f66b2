package glyph

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

var white = image.NewUniform(color.White)

// crop copies the part of img within r onto a white canvas covering r. The
// result keeps the coordinates of img, so parts of r outside img stay white.
func crop(img image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, white, image.Point{}, draw.Src)
	src := r.Intersect(img.Bounds())
	if !src.Empty() {
		draw.Draw(dst, src, img, src.Min, draw.Src)
	}
	return dst
}

// pad crops the part of img within r with a white margin of n pixels on
// every side.
func pad(img image.Image, r image.Rectangle, n int) *image.RGBA {
	dst := crop(img, r.Inset(-n))
	// Anything beyond r belongs to other glyphs.
	blank(dst, image.Rect(r.Min.X-n, r.Min.Y-n, r.Max.X+n, r.Min.Y))
	blank(dst, image.Rect(r.Min.X-n, r.Max.Y, r.Max.X+n, r.Max.Y+n))
	blank(dst, image.Rect(r.Min.X-n, r.Min.Y, r.Min.X, r.Max.Y))
	blank(dst, image.Rect(r.Max.X, r.Min.Y, r.Max.X+n, r.Max.Y))
	return dst
}

// blank paints r white in dst.
func blank(dst draw.Image, r image.Rectangle) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, white, image.Point{}, draw.Src)
}

// margins expands r by left and right pixels horizontally, clipped to bounds.
func margins(r image.Rectangle, left, right int, bounds image.Rectangle) image.Rectangle {
	m := image.Rect(r.Min.X-left, r.Min.Y, r.Max.X+right, r.Max.Y).Intersect(bounds)
	if m.Empty() {
		return r
	}
	return m
}

// Normalize scales a raster to a size×size square, preserving its aspect
// ratio and centering it on white. Classifiers trained on fixed-size inputs
// use it to prepare candidate rasters.
func Normalize(src image.Image, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), white, image.Point{}, draw.Src)
	b := src.Bounds()
	if b.Empty() || size <= 0 {
		return dst
	}
	w, h := size, size
	if b.Dx() > b.Dy() {
		h = max(1, b.Dy()*size/b.Dx())
	} else {
		w = max(1, b.Dx()*size/b.Dy())
	}
	x, y := (size-w)/2, (size-h)/2
	draw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), src, b, draw.Src, nil)
	return dst
}
