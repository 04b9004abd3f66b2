package solve

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/internal/config"
	"github.com/zephyrtronium/scribble/internal/logging"
	"github.com/zephyrtronium/scribble/predict"
)

// sheet draws a 30×40 block of ink at each x.
func sheet(xs ...int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 250, 100))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for _, x := range xs {
		draw.Draw(img, image.Rect(x, 20, x+30, 60), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return img
}

// byColumn reads symbols by where they are.
func byColumn(labels map[int]string) predict.ClassifierFunc {
	return func(ctx context.Context, raster image.Image, threshold float64) (string, error) {
		x := raster.Bounds().Min.X
		for left, l := range labels {
			if x >= left-20 && x < left+20 {
				return l, nil
			}
		}
		return predict.Unknown, nil
	}
}

func solver(t *testing.T, c predict.Classifier) *Solver {
	t.Helper()
	cfg := config.Default()
	cfg.Vision.Block = 0
	return New(cfg, c, logging.Discard())
}

func collect(seq func(func(predict.Event) bool)) []predict.Event {
	var r []predict.Event
	for e := range seq {
		r = append(r, e)
	}
	return r
}

func TestSolve(t *testing.T) {
	s := solver(t, byColumn(map[int]string{20: "6", 100: "+", 180: "7"}))
	env := scribble.NewEnv()
	ev := collect(s.Solve(context.Background(), sheet(20, 100, 180), env))
	require.NotEmpty(t, ev)
	last := ev[len(ev)-1]
	assert.Equal(t, predict.Done, last.Kind)
	assert.False(t, last.Aborted)
	require.Len(t, last.Results, 1)
	assert.Equal(t, []string{"6", "+", "7"}, last.Results[0].Labels)

	var calc *predict.Event
	for i := range ev {
		if ev[i].Kind == predict.Calculation {
			calc = &ev[i]
		}
	}
	require.NotNil(t, calc)
	assert.Equal(t, "13", calc.Text)
	assert.Equal(t, 0, calc.Value.Cmp(big.NewFloat(13)))
}

func TestSolveUnknown(t *testing.T) {
	s := solver(t, byColumn(map[int]string{20: "6"}))
	ev := collect(s.Solve(context.Background(), sheet(20, 100), scribble.NewEnv()))
	require.NotEmpty(t, ev)
	assert.True(t, ev[len(ev)-1].Aborted)
}

func TestSolveAdaptive(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, byColumn(map[int]string{20: "9"}), nil)
	l, err := s.Layout(context.Background(), sheet(20))
	require.NoError(t, err)
	require.Len(t, l.Rows, 1)
	assert.Len(t, l.Rows[0], 1)
}

func TestDecode(t *testing.T) {
	s := solver(t, byColumn(map[int]string{20: "4", 100: "*", 180: "2"}))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sheet(20, 100, 180)))
	rep := collect(s.Decode(context.Background(), &buf, scribble.NewEnv()))
	last := rep[len(rep)-1]
	assert.Equal(t, predict.Done, last.Kind)
	assert.False(t, last.Aborted)
	require.Len(t, last.Results, 1)
	assert.Equal(t, 0, last.Results[0].Value.Cmp(big.NewFloat(8)))
}

func TestDecodeGarbage(t *testing.T) {
	s := solver(t, byColumn(nil))
	ev := collect(s.Decode(context.Background(), strings.NewReader("not an image"), scribble.NewEnv()))
	require.Len(t, ev, 2)
	assert.Equal(t, predict.Failure, ev[0].Kind)
	assert.Error(t, ev[0].Err)
	assert.Equal(t, predict.Done, ev[1].Kind)
	assert.True(t, ev[1].Aborted)
}

func TestTooLarge(t *testing.T) {
	s := solver(t, byColumn(nil))
	s.MaxPixels = 100
	_, err := s.Layout(context.Background(), sheet())
	assert.ErrorIs(t, err, ErrTooLarge)
	ev := collect(s.Solve(context.Background(), sheet(), scribble.NewEnv()))
	require.Len(t, ev, 2)
	assert.ErrorIs(t, ev[0].Err, ErrTooLarge)
}
