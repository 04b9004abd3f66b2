// Package solve runs submitted images through the whole pipeline: padding,
// binarization, contour extraction, grouping, classification, and
// evaluation.
package solve

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"iter"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/glyph"
	"github.com/zephyrtronium/scribble/internal/config"
	"github.com/zephyrtronium/scribble/internal/logging"
	"github.com/zephyrtronium/scribble/internal/vision"
	"github.com/zephyrtronium/scribble/predict"
)

var tracer = otel.Tracer("scribble.solve")

// ErrTooLarge is returned for images with more pixels than a Solver allows.
var ErrTooLarge = errors.New("image too large")

// Solver reads images.
type Solver struct {
	Binarizer vision.Binarizer
	Grouper   glyph.Grouper
	Predictor *predict.Predictor
	// Pad is the white margin added to the right and bottom of each image so
	// that symbols touching the edge are not mistaken for the page border.
	Pad int
	// MaxPixels bounds the area of an image. Zero is unlimited.
	MaxPixels int
	Log       *slog.Logger
}

// New creates a Solver from configuration.
func New(cfg *config.Config, c predict.Classifier, log *slog.Logger) *Solver {
	p := predict.New(c, cfg.Eval.ParseOptions()...)
	p.Policy = cfg.Policy()
	return &Solver{
		Binarizer: vision.Binarizer{
			Threshold: uint8(cfg.Vision.Threshold),
			Block:     cfg.Vision.Block,
			C:         cfg.Vision.C,
		},
		Grouper:   cfg.Grouping.Grouper(),
		Predictor: p,
		Pad:       cfg.Vision.Pad,
		MaxPixels: cfg.Server.MaxImageBytes / 4,
		Log:       logging.Or(log),
	}
}

// Layout finds the symbols of img.
func (s *Solver) Layout(ctx context.Context, img image.Image) (*glyph.Layout, error) {
	_, span := tracer.Start(ctx, "solve.Layout")
	defer span.End()
	b := img.Bounds()
	if s.MaxPixels > 0 && b.Dx()*b.Dy() > s.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, b.Dx(), b.Dy())
	}
	start := time.Now()
	page := vision.Extend(img, s.Pad, s.Pad)
	mask := s.Binarizer.Binarize(page)
	contours := vision.Contours(mask)
	l, err := s.Grouper.Group(page, contours)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("solve.contours", len(contours)),
		attribute.Int("solve.candidates", len(l.Candidates)),
	)
	s.Log.DebugContext(ctx, "grouped image",
		slog.Int("width", b.Dx()),
		slog.Int("height", b.Dy()),
		slog.Int("contours", len(contours)),
		slog.Int("candidates", len(l.Candidates)),
		slog.Int("rows", len(l.Rows)),
		slog.Duration("took", time.Since(start)),
	)
	return l, nil
}

// Solve reads and evaluates img against env. Like Predict, the last event is
// always Done unless iteration stops early; an image that cannot be grouped
// produces a Failure followed by an aborted Done.
func (s *Solver) Solve(ctx context.Context, img image.Image, env *scribble.Env) iter.Seq[predict.Event] {
	return func(yield func(predict.Event) bool) {
		ctx, span := tracer.Start(ctx, "solve.Solve", trace.WithAttributes(attribute.String("solve.size", img.Bounds().Size().String())))
		defer span.End()
		l, err := s.Layout(ctx, img)
		if err != nil {
			span.RecordError(err)
			abort(yield, err)
			return
		}
		for e := range s.Predictor.Predict(ctx, l, env) {
			if !yield(e) {
				return
			}
		}
	}
}

// Decode decodes an image and solves it.
func (s *Solver) Decode(ctx context.Context, r io.Reader, env *scribble.Env) iter.Seq[predict.Event] {
	img, _, err := vision.Decode(r)
	if err != nil {
		return func(yield func(predict.Event) bool) { abort(yield, err) }
	}
	return s.Solve(ctx, img, env)
}

func abort(yield func(predict.Event) bool, err error) {
	if !yield(predict.Event{Kind: predict.Failure, Err: err, Message: err.Error()}) {
		return
	}
	yield(predict.Event{Kind: predict.Done, Message: "submission abandoned", Vars: map[string]*big.Float{}, Aborted: true})
}
