// Package vision prepares submitted images for grouping: decoding, padding,
// binarization, and extraction of ink contours.
package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/zephyrtronium/scribble/glyph"
)

// Decode decodes an image in any registered format.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// DecodeBase64 decodes a base64 image, optionally given as a data URL.
func DecodeBase64(s string) (image.Image, string, error) {
	b, err := Base64(s)
	if err != nil {
		return nil, "", err
	}
	return Decode(bytes.NewReader(b))
}

// Base64 decodes standard or URL-safe base64, stripping a data URL prefix
// if there is one.
func Base64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i > 0 {
			s = s[i+1:]
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("bad base64 image: %w", err)
	}
	return b, nil
}

// Extend draws img over a white canvas extended by right and bottom pixels.
// Transparent parts of img become white. The result has its origin at the
// top left.
func Extend(img image.Image, right, bottom int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()+right, b.Dy()+bottom))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(0, 0, b.Dx(), b.Dy()), img, b.Min, draw.Over)
	return dst
}

// Binarizer separates ink from paper.
type Binarizer struct {
	// Threshold is the gray level below which a pixel is ink, used when
	// Block is less than 2.
	Threshold uint8
	// Block is the side of the neighborhood for adaptive thresholding: a pixel
	// is ink if it is darker than the mean of its neighborhood minus C.
	Block int
	C     int
}

// Binarize returns a mask of img with ink black and paper white.
func (bin Binarizer) Binarize(img image.Image) *image.Gray {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	gray := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.Gray)
			gray[y*w+x] = int(g.Y)
		}
	}
	out := image.NewGray(r)
	set := func(x, y int, ink bool) {
		v := uint8(255)
		if ink {
			v = 0
		}
		out.Pix[y*out.Stride+x] = v
	}
	if bin.Block < 2 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				set(x, y, gray[y*w+x] < int(bin.Threshold))
			}
		}
		return out
	}
	// Summed-area table with a zero row and column.
	sat := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		row := 0
		for x := 0; x < w; x++ {
			row += gray[y*w+x]
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + row
		}
	}
	half := bin.Block / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h-1, y+half)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w-1, x+half)
			sum := sat[(y1+1)*(w+1)+x1+1] - sat[y0*(w+1)+x1+1] - sat[(y1+1)*(w+1)+x0] + sat[y0*(w+1)+x0]
			n := (x1 - x0 + 1) * (y1 - y0 + 1)
			set(x, y, gray[y*w+x]*n < sum-bin.C*n)
		}
	}
	return out
}

// Contours finds the 8-connected regions of ink in a mask produced by
// Binarize. Each contour's area is its number of ink pixels. Contours are
// returned in the order their top-left-most pixel is found scanning rows.
func Contours(mask *image.Gray) []glyph.Contour {
	r := mask.Bounds()
	w, h := r.Dx(), r.Dy()
	ink := func(x, y int) bool { return mask.Pix[y*mask.Stride+x] < 128 }
	seen := make([]bool, w*h)
	var out []glyph.Contour
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || !ink(x, y) {
				continue
			}
			seen[y*w+x] = true
			stack = append(stack[:0], y*w+x)
			minX, minY, maxX, maxY, n := x, y, x, y, 0
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p%w, p/w
				n++
				minX, maxX = min(minX, px), max(maxX, px)
				minY, maxY = min(minY, py), max(maxY, py)
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						qx, qy := px+dx, py+dy
						if qx < 0 || qy < 0 || qx >= w || qy >= h {
							continue
						}
						q := qy*w + qx
						if seen[q] || !ink(qx, qy) {
							continue
						}
						seen[q] = true
						stack = append(stack, q)
					}
				}
			}
			out = append(out, glyph.Contour{
				Box: glyph.Box{
					X: r.Min.X + minX,
					Y: r.Min.Y + minY,
					W: maxX - minX + 1,
					H: maxY - minY + 1,
				},
				Area: float64(n),
			})
		}
	}
	return out
}
