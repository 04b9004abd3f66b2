package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrtronium/scribble/glyph"
)

func paper(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func TestExtend(t *testing.T) {
	// Transparent everywhere except one dark pixel.
	img := image.NewNRGBA(image.Rect(5, 5, 15, 25))
	img.Set(6, 7, color.Black)
	out := Extend(img, 50, 50)
	assert.Equal(t, image.Rect(0, 0, 60, 70), out.Bounds())
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(1, 2))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(59, 69))
}

func TestBinarizeGlobal(t *testing.T) {
	img := paper(4, 1)
	img.Set(0, 0, color.Gray{Y: 10})
	img.Set(1, 0, color.Gray{Y: 127})
	img.Set(2, 0, color.Gray{Y: 128})
	m := Binarizer{Threshold: 128}.Binarize(img)
	assert.Equal(t, []uint8{0, 0, 255, 255}, m.Pix)
}

func TestBinarizeAdaptive(t *testing.T) {
	img := paper(40, 40)
	fill(img, image.Rect(10, 10, 13, 30), color.Black)
	// A uniform gray wash is paper, not ink.
	fill(img, image.Rect(25, 0, 40, 40), color.Gray{Y: 90})
	m := Binarizer{Block: 11, C: 2}.Binarize(img)
	assert.Equal(t, uint8(0), m.GrayAt(11, 20).Y)
	assert.Equal(t, uint8(255), m.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(255), m.GrayAt(35, 20).Y)
}

func TestContours(t *testing.T) {
	img := paper(100, 60)
	fill(img, image.Rect(10, 10, 20, 40), color.Black)
	// Two squares touching only at a corner are one region.
	fill(img, image.Rect(50, 10, 55, 15), color.Black)
	fill(img, image.Rect(55, 15, 60, 20), color.Black)
	fill(img, image.Rect(80, 50, 81, 51), color.Black)
	cs := Contours(Binarizer{Threshold: 128}.Binarize(img))
	require.Len(t, cs, 3)
	assert.Equal(t, glyph.Contour{Box: glyph.Box{X: 10, Y: 10, W: 10, H: 30}, Area: 300}, cs[0])
	assert.Equal(t, glyph.Contour{Box: glyph.Box{X: 50, Y: 10, W: 10, H: 10}, Area: 50}, cs[1])
	assert.Equal(t, glyph.Contour{Box: glyph.Box{X: 80, Y: 50, W: 1, H: 1}, Area: 1}, cs[2])
}

func TestDecodeBase64(t *testing.T) {
	img := paper(3, 2)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	s := base64.StdEncoding.EncodeToString(buf.Bytes())
	for _, in := range []string{s, "data:image/png;base64," + s, base64.RawURLEncoding.EncodeToString(buf.Bytes())} {
		got, format, err := DecodeBase64(in)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, image.Rect(0, 0, 3, 2), got.Bounds())
	}
	_, _, err := DecodeBase64("!!!")
	assert.Error(t, err)
	_, _, err = DecodeBase64(base64.StdEncoding.EncodeToString([]byte("not an image")))
	assert.Error(t, err)
}
