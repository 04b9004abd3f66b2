// Package scene reads scene files, which describe the symbols of a
// handwritten page by their boxes and labels, and replays them through
// grouping and prediction without an image model.
//
// A scene file holds any number of scenes:
//
//	scene "square root" {
//		size 320 200
//		given "B" = "2"
//		glyph "sqrt" 10 10 200 150 {
//			glyph "1" 80 60 30 60
//			glyph "6" 130 60 30 60
//		}
//		bar 230 70 40 5
//		bar 230 85 40 5
//		expect row 1 = "4"
//	}
//
// Boxes are x, y, width, height. Glyphs nested in braces are drawn inside
// their parent. Bars are unlabeled strokes which grouping turns into minus
// or equals signs. Expectations check a row's displayed value, its failure
// kind (expect row 2 error "semantic"), that it produced nothing
// (expect row 1 none), a variable (expect var "A" = "6"), or that the
// submission was abandoned (expect aborted).
package scene

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/glyph"
	"github.com/zephyrtronium/scribble/predict"
)

// File is a parsed scene file.
type File struct {
	Scenes []*Scene `parser:"@@*"`
}

// Scene is one page.
type Scene struct {
	Pos     lexer.Position
	Name    string     `parser:"\"scene\" @String \"{\""`
	Size    *Size      `parser:"( \"size\" @@ )?"`
	Givens  []*Binding `parser:"( \"given\" @@ )*"`
	Shapes  []*Shape   `parser:"@@*"`
	Expects []*Expect  `parser:"@@* \"}\""`
}

type Size struct {
	W int `parser:"@Int"`
	H int `parser:"@Int"`
}

// Binding names a variable and its decimal value.
type Binding struct {
	Name  string `parser:"@String \"=\""`
	Value string `parser:"@String"`
}

// Shape is a glyph or a bar.
type Shape struct {
	Pos   lexer.Position
	Glyph *Glyph `parser:"  @@"`
	Bar   *Rect  `parser:"| \"bar\" @@"`
}

type Glyph struct {
	Label    string   `parser:"\"glyph\" @String"`
	Rect     Rect     `parser:"@@"`
	Children []*Shape `parser:"( \"{\" @@* \"}\" )?"`
}

type Rect struct {
	X int `parser:"@Int"`
	Y int `parser:"@Int"`
	W int `parser:"@Int"`
	H int `parser:"@Int"`
}

func (r Rect) box() glyph.Box {
	return glyph.Box{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// Expect is a check on the outcome of a scene.
type Expect struct {
	Pos     lexer.Position
	Aborted bool       `parser:"\"expect\" ( @\"aborted\""`
	Row     *RowExpect `parser:"| \"row\" @@"`
	Var     *Binding   `parser:"| \"var\" @@ )"`
}

type RowExpect struct {
	Index   int     `parser:"@Int"`
	Value   *string `parser:"( \"=\" @String"`
	Error   *string `parser:"| \"error\" @String"`
	Nothing bool    `parser:"| @\"none\" )"`
}

var parser = participle.MustBuild[File](participle.Unquote("String"))

// Parse reads scenes from r. The name is used in error messages.
func Parse(name string, r io.Reader) ([]*Scene, error) {
	f, err := parser.Parse(name, r)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing scenes from %s", name)
	}
	for _, s := range f.Scenes {
		if err := s.validate(); err != nil {
			return nil, errors.Wrapf(err, "scene %q at %s", s.Name, s.Pos)
		}
	}
	return f.Scenes, nil
}

// Load reads the scene file at path.
func Load(path string) ([]*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening scene file")
	}
	defer f.Close()
	return Parse(path, f)
}

func (s *Scene) validate() error {
	var check func(shapes []*Shape) error
	check = func(shapes []*Shape) error {
		for _, sh := range shapes {
			r := sh.rect()
			if r.W <= 0 || r.H <= 0 {
				return errors.Errorf("empty box at %s", sh.Pos)
			}
			if sh.Glyph != nil {
				if err := check(sh.Glyph.Children); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := check(s.Shapes); err != nil {
		return err
	}
	for _, e := range s.Expects {
		if e.Row != nil && e.Row.Index < 1 {
			return errors.Errorf("row numbers start at 1, at %s", e.Pos)
		}
	}
	return nil
}

func (sh *Shape) rect() Rect {
	if sh.Glyph != nil {
		return sh.Glyph.Rect
	}
	return *sh.Bar
}

// labeled is a flattened shape. Bars have an empty label.
type labeled struct {
	box   glyph.Box
	label string
}

func (s *Scene) flatten() []labeled {
	var r []labeled
	var walk func(shapes []*Shape)
	walk = func(shapes []*Shape) {
		for _, sh := range shapes {
			if sh.Glyph == nil {
				r = append(r, labeled{box: sh.Bar.box()})
				continue
			}
			r = append(r, labeled{box: sh.Glyph.Rect.box(), label: sh.Glyph.Label})
			walk(sh.Glyph.Children)
		}
	}
	walk(s.Shapes)
	return r
}

// Image draws the scene's boxes as ink on a white page. Glyphs are drawn as
// outlines so that nested glyphs remain separate.
func (s *Scene) Image() *image.Gray {
	shapes := s.flatten()
	var bounds image.Rectangle
	if s.Size != nil {
		bounds = image.Rect(0, 0, s.Size.W, s.Size.H)
	} else {
		for _, l := range shapes {
			bounds = bounds.Union(l.box.Rect())
		}
		bounds = image.Rect(0, 0, bounds.Max.X+50, bounds.Max.Y+50)
	}
	img := image.NewGray(bounds)
	draw.Draw(img, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	ink := image.NewUniform(color.Black)
	for _, l := range shapes {
		r := l.box.Rect()
		if l.label == "" {
			draw.Draw(img, r, ink, image.Point{}, draw.Src)
			continue
		}
		draw.Draw(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), ink, image.Point{}, draw.Src)
		draw.Draw(img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), ink, image.Point{}, draw.Src)
		draw.Draw(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), ink, image.Point{}, draw.Src)
		draw.Draw(img, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), ink, image.Point{}, draw.Src)
	}
	return img
}

// Contours returns a contour for every shape in the scene.
func (s *Scene) Contours() []glyph.Contour {
	shapes := s.flatten()
	r := make([]glyph.Contour, len(shapes))
	for i, l := range shapes {
		r[i] = glyph.Contour{Box: l.box}
	}
	return r
}

// Layout groups the scene's shapes.
func (s *Scene) Layout(g *glyph.Grouper) (*glyph.Layout, error) {
	return g.Group(s.Image(), s.Contours())
}

// Classifier returns a classifier which reads the scene's labels. It labels
// a raster with the largest glyph lying entirely within it, or as an equals
// sign if the raster holds only bars.
func (s *Scene) Classifier() predict.Classifier {
	shapes := s.flatten()
	return predict.ClassifierFunc(func(ctx context.Context, raster image.Image, threshold float64) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rb := raster.Bounds()
		best, area, bars := "", 0, false
		for _, l := range shapes {
			r := l.box.Rect()
			if !r.In(rb) {
				continue
			}
			if l.label == "" {
				bars = true
				continue
			}
			if a := l.box.Area(); a > area {
				best, area = l.label, a
			}
		}
		switch {
		case best != "":
			return best, nil
		case bars:
			return "=", nil
		default:
			return predict.Unknown, nil
		}
	})
}

// Env returns a fresh environment holding the scene's given variables.
func (s *Scene) Env(prec uint) (*scribble.Env, error) {
	env := scribble.NewEnv(scribble.Prec(prec))
	for _, b := range s.Givens {
		v, _, err := new(big.Float).SetPrec(prec).Parse(b.Value, 10)
		if err != nil {
			return nil, errors.Wrapf(err, "given %s", b.Name)
		}
		env.Set(b.Name, v)
	}
	return env, nil
}

// Replay runs the scene through grouping and prediction. The predictor's
// classifier is replaced by the scene's own.
func (s *Scene) Replay(ctx context.Context, g *glyph.Grouper, p *predict.Predictor, prec uint) (*predict.Report, error) {
	l, err := s.Layout(g)
	if err != nil {
		return nil, errors.Wrapf(err, "grouping scene %q", s.Name)
	}
	env, err := s.Env(prec)
	if err != nil {
		return nil, err
	}
	q := *p
	q.Classifier = s.Classifier()
	return q.Run(ctx, l, env), nil
}

// CheckError lists the expectations a replay did not meet.
type CheckError struct {
	Scene    string
	Problems []string
}

func (err *CheckError) Error() string {
	return fmt.Sprintf("scene %q: %s", err.Scene, strings.Join(err.Problems, "; "))
}

// Check compares a replay's report to the scene's expectations. Values are
// compared as displayed with the given number of decimals.
func (s *Scene) Check(rep *predict.Report, decimals int) error {
	var probs []string
	fail := func(e *Expect, format string, args ...any) {
		probs = append(probs, fmt.Sprintf("line %d: ", e.Pos.Line)+fmt.Sprintf(format, args...))
	}
	for _, e := range s.Expects {
		switch {
		case e.Aborted:
			if !rep.Aborted {
				fail(e, "expected the submission to be abandoned")
			}
		case e.Var != nil:
			v := rep.Vars[strings.ToUpper(e.Var.Name)]
			if got := scribble.Format(v, decimals); v == nil || got != e.Var.Value {
				fail(e, "variable %s is %q, expected %q", e.Var.Name, got, e.Var.Value)
			}
		case e.Row != nil:
			i := e.Row.Index - 1
			if i >= len(rep.Results) {
				fail(e, "row %d was not evaluated", e.Row.Index)
				continue
			}
			res := rep.Results[i]
			got := scribble.Format(res.Value, decimals)
			kind := string(scribble.KindOf(res.Err))
			switch {
			case e.Row.Value != nil:
				if res.Err != nil || got != *e.Row.Value {
					fail(e, "row %d (%s) gave %q, error %v; expected %q", e.Row.Index, strings.Join(res.Labels, " "), got, res.Err, *e.Row.Value)
				}
			case e.Row.Error != nil:
				if kind != *e.Row.Error {
					fail(e, "row %d (%s) failed with %q, expected %q", e.Row.Index, strings.Join(res.Labels, " "), kind, *e.Row.Error)
				}
			case e.Row.Nothing:
				if res.Err != nil || res.Value != nil {
					fail(e, "row %d (%s) gave %q, error %v; expected nothing", e.Row.Index, strings.Join(res.Labels, " "), got, res.Err)
				}
			}
		}
	}
	if len(probs) > 0 {
		return &CheckError{Scene: s.Name, Problems: probs}
	}
	return nil
}
