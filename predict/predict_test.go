package predict_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/big"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/glyph"
	"github.com/zephyrtronium/scribble/predict"
)

// sym is a raster which reads as its own text.
type sym string

func (sym) ColorModel() color.Model { return color.GrayModel }
func (sym) Bounds() image.Rectangle { return image.Rect(0, 0, 20, 30) }
func (sym) At(x, y int) color.Color { return color.White }

// reader is a classifier which reads syms and records what it read.
type reader struct {
	seen []string
	err  error
}

func (r *reader) Classify(ctx context.Context, raster image.Image, threshold float64) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	s := string(raster.(sym))
	r.seen = append(r.seen, s)
	return s, nil
}

// builder assembles layouts by hand.
type builder struct {
	l glyph.Layout
}

// row adds candidates with the given labels at height y. A "-" label is a
// minus bar.
func (b *builder) row(y int, labels ...string) glyph.Row {
	var r glyph.Row
	for i, s := range labels {
		c := glyph.Candidate{
			Key: len(b.l.Candidates),
			Pos: image.Pt(10+40*i, y),
		}
		c.Box = glyph.Box{X: c.Pos.X, Y: y, W: 20, H: 30}
		if s == "-" {
			c.Shape = glyph.ShapeMinus
			c.Box.H = 4
		} else {
			c.Raster = sym(s)
		}
		b.l.Candidates = append(b.l.Candidates, c)
		r = append(r, len(b.l.Candidates)-1)
	}
	return r
}

func (b *builder) top(rows ...glyph.Row) *glyph.Layout {
	b.l.Rows = rows
	return &b.l
}

func kinds(evs []predict.Event) []predict.EventKind {
	r := make([]predict.EventKind, 0, len(evs))
	for _, e := range evs {
		r = append(r, e.Kind)
	}
	return r
}

func only(evs []predict.Event, k predict.EventKind) []predict.Event {
	var r []predict.Event
	for _, e := range evs {
		if e.Kind == k {
			r = append(r, e)
		}
	}
	return r
}

func TestPredictNested(t *testing.T) {
	var b builder
	root := b.row(10, "sqrt")
	arg := b.row(15, "1", "6")
	b.l.Candidates[root[0]].Children = []glyph.Row{arg}
	l := b.top(root)

	p := predict.New(&reader{})
	rep := p.Run(context.Background(), l, scribble.NewEnv())
	require.False(t, rep.Aborted)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, []string{"sqrt", "(", "16", ")"}, rep.Results[0].Labels)
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 1)
	assert.Equal(t, "4", calc[0].Text)
	assert.Equal(t, 0, calc[0].Value.Cmp(big.NewFloat(4)))
	assert.Equal(t, predict.Path{0}, calc[0].Row)
	// Diagonally past the radical, the last symbol of the top row.
	assert.Equal(t, &predict.Placement{X: 60, Y: 70, Width: 20, Height: 30}, calc[0].Position)
	assert.Equal(t, predict.Done, rep.Events[len(rep.Events)-1].Kind)
}

func TestPredictEqualsPlacement(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "2", "+", "3", "="))
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 1)
	assert.Equal(t, "5", calc[0].Text)
	// The equals sign is at x = 130.
	assert.Equal(t, &predict.Placement{X: 190, Y: 40, Width: 20, Height: 30}, calc[0].Position)
}

func TestPredictTwoRows(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "7", "times", "6"), b.row(200, "1", "/", "4"))
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 2)
	assert.Equal(t, "42", calc[0].Text)
	assert.Equal(t, predict.Path{0}, calc[0].Row)
	assert.Equal(t, "0.25", calc[1].Text)
	assert.Equal(t, predict.Path{1}, calc[1].Row)
	assert.Empty(t, only(rep.Events, predict.Failure))
}

func TestPredictUnknownAborts(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "1", predict.Unknown, "2"), b.row(200, "3", "+", "4"))
	r := &reader{}
	rep := predict.New(r).Run(context.Background(), l, scribble.NewEnv())
	assert.True(t, rep.Aborted)
	assert.Empty(t, only(rep.Events, predict.Calculation))
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	assert.Nil(t, fail[0].Row)
	var u *predict.UnknownSymbolError
	require.ErrorAs(t, fail[0].Err, &u)
	assert.Equal(t, predict.Path{0}, u.Row)
	assert.Equal(t, 1, u.Index)
	// Nothing after the unknown symbol is read.
	assert.Equal(t, []string{"1", predict.Unknown}, r.seen)
	assert.Equal(t, predict.Done, rep.Events[len(rep.Events)-1].Kind)
}

func TestPredictUnknownNested(t *testing.T) {
	var b builder
	first := b.row(10, "2")
	root := b.row(200, "sqrt")
	b.l.Candidates[root[0]].Children = []glyph.Row{b.row(205, predict.Unknown)}
	l := b.top(first, root)
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	assert.True(t, rep.Aborted)
	// The first row was already reported.
	require.Len(t, rep.Results, 1)
	var u *predict.UnknownSymbolError
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	require.ErrorAs(t, fail[0].Err, &u)
	assert.Equal(t, predict.Path{1, 0}, u.Row)
}

func TestPredictDivisionByZero(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "4", "/", "0"), b.row(200, "2", "+", "3"))
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	assert.False(t, rep.Aborted)
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	assert.Equal(t, predict.Path{0}, fail[0].Row)
	var ae *scribble.ArithmeticError
	assert.ErrorAs(t, fail[0].Err, &ae)
	assert.Equal(t, "semantic error: division by zero: 4 / 0", fail[0].Message)
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 1)
	assert.Equal(t, "5", calc[0].Text)
	require.Len(t, rep.Results, 2)
	assert.Error(t, rep.Results[0].Err)
	assert.NoError(t, rep.Results[1].Err)
}

func TestPredictSyntaxError(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "(", "2", "+"))
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	assert.Equal(t, scribble.KindSyntax, scribble.KindOf(fail[0].Err))
}

func TestPredictAssignment(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "x", "=", "5"), b.row(200, "x", "+", "1"))
	env := scribble.NewEnv()
	rep := predict.New(&reader{}).Run(context.Background(), l, env)
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 1)
	assert.Equal(t, "6", calc[0].Text)
	require.Contains(t, rep.Vars, "X")
	assert.Equal(t, 0, rep.Vars["X"].Cmp(big.NewFloat(5)))
	assert.Equal(t, 0, env.Lookup("x").Cmp(big.NewFloat(5)))
	assert.Nil(t, rep.Results[0].Value)
}

func TestPredictZero(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "2", "-", "2"))
	p := predict.New(&reader{})
	rep := p.Run(context.Background(), l, scribble.NewEnv())
	assert.Empty(t, only(rep.Events, predict.Calculation))
	require.NotNil(t, rep.Results[0].Value)
	assert.Equal(t, 0, rep.Results[0].Value.Sign())

	p.Policy.ReportZero = true
	rep = p.Run(context.Background(), l, scribble.NewEnv())
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 1)
	assert.Equal(t, "0", calc[0].Text)
}

func TestPredictMinusNotClassified(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "9", "-", "3"))
	r := &reader{}
	rep := predict.New(r).Run(context.Background(), l, scribble.NewEnv())
	assert.Equal(t, []string{"9", "3"}, r.seen)
	assert.Equal(t, []string{"9", "-", "3"}, rep.Results[0].Labels)
	assert.Equal(t, 0, rep.Results[0].Value.Cmp(big.NewFloat(6)))
}

func TestPredictNestedFailure(t *testing.T) {
	var b builder
	root := b.row(10, "sqrt")
	b.l.Candidates[root[0]].Children = []glyph.Row{b.row(15, "4", "/", "0")}
	l := b.top(root, b.row(200, "1"))
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	assert.False(t, rep.Aborted)
	// One failure, reported at the top-level row and naming the nested row.
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	assert.Equal(t, predict.Path{0}, fail[0].Row)
	var ge *predict.GroupError
	require.ErrorAs(t, fail[0].Err, &ge)
	assert.Equal(t, predict.Path{0, 0}, ge.Row)
	assert.Equal(t, "row 1.1", ge.Row.String())
	var ae *scribble.ArithmeticError
	assert.ErrorAs(t, fail[0].Err, &ae)
	assert.Contains(t, fail[0].Message, "nested row 1.1")
	assert.Equal(t, fail[0].Err, rep.Results[0].Err)
	calc := only(rep.Events, predict.Calculation)
	require.Len(t, calc, 1)
	assert.Equal(t, predict.Path{1}, calc[0].Row)
}

func TestPredictDeepNestedFailure(t *testing.T) {
	var b builder
	root := b.row(10, "sqrt")
	inner := b.row(15, "sqrt")
	b.l.Candidates[root[0]].Children = []glyph.Row{inner}
	b.l.Candidates[inner[0]].Children = []glyph.Row{b.row(20, "c")}
	l := b.top(root)
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	assert.Equal(t, predict.Path{0}, fail[0].Row)
	var ne *scribble.NameError
	require.ErrorAs(t, fail[0].Err, &ne)
	assert.Equal(t, scribble.KindSemantic, scribble.KindOf(fail[0].Err))
}

func TestPredictNestedAssignment(t *testing.T) {
	var b builder
	root := b.row(10, "sqrt")
	b.l.Candidates[root[0]].Children = []glyph.Row{b.row(15, "y", "=", "4")}
	l := b.top(root)
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	var ge *predict.GroupError
	require.ErrorAs(t, rep.Results[0].Err, &ge)
	assert.NoError(t, ge.Err)
}

func TestPredictClassifierError(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "1"), b.row(200, "2"))
	boom := errors.New("boom")
	rep := predict.New(&reader{err: boom}).Run(context.Background(), l, scribble.NewEnv())
	assert.True(t, rep.Aborted)
	fail := only(rep.Events, predict.Failure)
	require.Len(t, fail, 1)
	assert.ErrorIs(t, fail[0].Err, boom)
}

func TestPredictNotes(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "1"))
	l.Notes = []string{"contour 0 is a narrow glyph, possibly a one"}
	rep := predict.New(&reader{}).Run(context.Background(), l, scribble.NewEnv())
	assert.Equal(t, []predict.EventKind{
		predict.Progress,
		predict.Progress,
		predict.Progress,
		predict.Calculation,
		predict.Done,
	}, kinds(rep.Events))
	assert.Equal(t, "contour 0 is a narrow glyph, possibly a one", rep.Events[1].Message)
	assert.Equal(t, "1", rep.Events[2].Message)
}

func TestPredictStopEarly(t *testing.T) {
	var b builder
	l := b.top(b.row(10, "1"), b.row(200, "2"))
	r := &reader{}
	p := predict.New(r)
	for range p.Predict(context.Background(), l, scribble.NewEnv()) {
		break
	}
	assert.Empty(t, r.seen)
}

func TestPredictEmpty(t *testing.T) {
	rep := predict.New(&reader{}).Run(context.Background(), &glyph.Layout{}, scribble.NewEnv())
	assert.Equal(t, []predict.EventKind{predict.Progress, predict.Done}, kinds(rep.Events))
	assert.Empty(t, rep.Results)
}

func TestClassifierFunc(t *testing.T) {
	var got float64
	c := predict.ClassifierFunc(func(ctx context.Context, raster image.Image, threshold float64) (string, error) {
		got = threshold
		return "7", nil
	})
	var b builder
	l := b.top(b.row(10, "ignored"))
	rep := predict.New(c).Run(context.Background(), l, scribble.NewEnv())
	assert.Equal(t, 0.4, got)
	assert.True(t, slices.Equal([]string{"7"}, rep.Results[0].Labels))
}
