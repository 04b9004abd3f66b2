// Package predict reads the rows of a grouped layout with a classifier and
// evaluates them.
//
// Each top-level row is an independent expression. A symbol containing
// nested rows, such as a radical, is followed in its row by the values of
// the nested rows in parentheses, so a radical read as "sqrt" over a nested
// row reading "1 6" becomes "sqrt ( 16 )". A row which fails to tokenize,
// parse, or evaluate is reported and skipped, but a symbol the classifier
// cannot read abandons the whole submission.
package predict

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"math/big"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zephyrtronium/scribble"
	"github.com/zephyrtronium/scribble/glyph"
)

var tracer = otel.Tracer("scribble.predict")

// Unknown is the label a classifier returns for a symbol it cannot read with
// enough confidence.
const Unknown = "unknown"

// Classifier reads single symbols.
type Classifier interface {
	// Classify returns the label of the symbol in raster, or Unknown if the
	// best prediction has confidence below threshold. Rasters are in the
	// coordinates of the image they were cut from, so their bounds need not
	// start at the origin.
	Classify(ctx context.Context, raster image.Image, threshold float64) (string, error)
}

// ClassifierFunc adapts a function to a Classifier.
type ClassifierFunc func(ctx context.Context, raster image.Image, threshold float64) (string, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, raster image.Image, threshold float64) (string, error) {
	return f(ctx, raster, threshold)
}

// Predictor turns layouts into events.
type Predictor struct {
	Classifier Classifier
	Policy     Policy
	// Options are the parse options for every row.
	Options []scribble.ParseOption
}

// New creates a Predictor with the default policy.
func New(c Classifier, opts ...scribble.ParseOption) *Predictor {
	return &Predictor{Classifier: c, Policy: DefaultPolicy(), Options: opts}
}

// Predict reads and evaluates the rows of l against env. Work happens as the
// returned sequence is iterated; stopping early abandons the remaining rows.
// The last event is always Done unless iteration stops early.
//
// Predict mutates env through assignments. Callers must not evaluate other
// expressions against env until iteration finishes.
func (p *Predictor) Predict(ctx context.Context, l *glyph.Layout, env *scribble.Env) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, span := tracer.Start(ctx, "predict.Submission",
			trace.WithAttributes(
				attribute.Int("predict.rows", len(l.Rows)),
				attribute.Int("predict.candidates", len(l.Candidates)),
			),
		)
		defer span.End()
		r := run{
			p:     p,
			l:     l,
			env:   env,
			yield: yield,
			vars:  make(map[string]*big.Float),
		}
		if err := r.submission(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// Report is the collected outcome of a prediction.
type Report struct {
	Events  []Event
	Results []Result
	Vars    map[string]*big.Float
	Aborted bool
}

// Run runs Predict to completion and collects its events.
func (p *Predictor) Run(ctx context.Context, l *glyph.Layout, env *scribble.Env) *Report {
	var rep Report
	for e := range p.Predict(ctx, l, env) {
		rep.Events = append(rep.Events, e)
		if e.Kind == Done {
			rep.Results = e.Results
			rep.Vars = e.Vars
			rep.Aborted = e.Aborted
		}
	}
	return &rep
}

// run is the state of one submission.
type run struct {
	p       *Predictor
	l       *glyph.Layout
	env     *scribble.Env
	yield   func(Event) bool
	stopped bool
	// vars holds the variables assigned during the submission.
	vars map[string]*big.Float
}

// emit sends an event to the consumer. It reports false once the consumer
// has stopped.
func (r *run) emit(e Event) bool {
	if r.stopped {
		return false
	}
	if !r.yield(e) {
		r.stopped = true
	}
	return !r.stopped
}

func (r *run) progress(path Path, format string, args ...any) bool {
	return r.emit(Event{Kind: Progress, Row: path, Message: fmt.Sprintf(format, args...)})
}

func (r *run) fail(path Path, err error) bool {
	msg := err.Error()
	if k := scribble.KindOf(err); k != scribble.KindOther {
		msg = string(k) + " error: " + msg
	}
	return r.emit(Event{Kind: Failure, Row: path, Err: err, Message: msg})
}

// submission processes every row. The returned error is the one that
// abandoned the submission, if any.
func (r *run) submission(ctx context.Context) error {
	if !r.progress(nil, "evaluating %d rows", len(r.l.Rows)) {
		return nil
	}
	for _, n := range r.l.Notes {
		if !r.progress(nil, "%s", n) {
			return nil
		}
	}
	results := make([]Result, 0, len(r.l.Rows))
	for i, row := range r.l.Rows {
		res, err := r.top(ctx, Path{i}, row)
		if err != nil {
			// Only fatal errors come back from top.
			r.fail(nil, err)
			r.emit(Event{
				Kind:    Done,
				Message: "submission abandoned",
				Results: results,
				Vars:    r.vars,
				Aborted: true,
			})
			return err
		}
		results = append(results, res)
		if r.stopped {
			return nil
		}
	}
	r.emit(Event{
		Kind:    Done,
		Message: fmt.Sprintf("evaluated %d rows", len(results)),
		Results: results,
		Vars:    r.vars,
	})
	return nil
}

// top processes one top-level row. Row failures are reported and recorded in
// the result; the error is non-nil only if the submission must be abandoned.
func (r *run) top(ctx context.Context, path Path, row glyph.Row) (Result, error) {
	ctx, span := tracer.Start(ctx, "predict.Row", trace.WithAttributes(attribute.String("predict.row", path.String())))
	defer span.End()
	labels, eq, err := r.labels(ctx, path, row)
	res := Result{Labels: labels}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if fatal(err) {
			return res, err
		}
		res.Err = err
		r.fail(path, err)
		return res, nil
	}
	if !r.progress(path, "%s", strings.Join(labels, " ")) {
		return res, nil
	}
	v, err := r.eval(labels)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Err = err
		r.fail(path, err)
		return res, nil
	}
	res.Value = v
	span.SetStatus(codes.Ok, "")
	if !r.p.Policy.reportable(v) {
		return res, nil
	}
	text := scribble.Format(v, r.p.Policy.Decimals)
	r.emit(Event{
		Kind:     Calculation,
		Row:      path,
		Message:  "calculated " + text,
		Value:    v,
		Text:     text,
		Position: r.place(eq, &r.l.Candidates[row[len(row)-1]]),
	})
	return res, nil
}

// nested evaluates a nested row to a value. A failure is returned as a
// *GroupError naming the nested row; the top-level row containing it reports
// the failure.
func (r *run) nested(ctx context.Context, path Path, row glyph.Row) (*big.Float, error) {
	labels, _, err := r.labels(ctx, path, row)
	if err != nil {
		return nil, err
	}
	v, err := r.eval(labels)
	if err != nil {
		return nil, &GroupError{Row: path, Err: err}
	}
	if v == nil {
		return nil, &GroupError{Row: path}
	}
	return v, nil
}

// labels builds the label sequence of a row, classifying each symbol and
// splicing in the values of nested rows. It also returns the last symbol read
// as an equals sign.
func (r *run) labels(ctx context.Context, path Path, row glyph.Row) ([]string, *glyph.Candidate, error) {
	labels := make([]string, 0, len(row))
	var eq *glyph.Candidate
	for i, k := range row {
		c := &r.l.Candidates[k]
		if c.Shape == glyph.ShapeMinus {
			labels = append(labels, "-")
			continue
		}
		lbl, err := r.p.Classifier.Classify(ctx, c.Raster, r.p.Policy.Threshold)
		if err != nil {
			return labels, nil, &ClassifyError{Row: path, Index: i, Err: err}
		}
		if lbl == Unknown {
			return labels, nil, &UnknownSymbolError{Row: path, Index: i, Key: c.Key}
		}
		if lbl == "=" {
			eq = c
		}
		labels = append(labels, lbl)
		if len(c.Children) == 0 {
			continue
		}
		labels = append(labels, "(")
		for j, child := range c.Children {
			v, err := r.nested(ctx, path.child(j), child)
			if err != nil {
				return labels, nil, err
			}
			labels = append(labels, scribble.Literal(v))
		}
		labels = append(labels, ")")
	}
	return labels, eq, nil
}

// eval evaluates a label sequence and records the variables it assigns.
func (r *run) eval(labels []string) (*big.Float, error) {
	e, err := scribble.ParseLabels(scribble.Query(labels), r.p.Options...)
	if err != nil {
		return nil, err
	}
	v, err := e.Eval(r.env)
	if err != nil {
		return nil, err
	}
	for _, name := range e.Targets() {
		r.vars[name] = r.env.Lookup(name)
	}
	return v, nil
}

// place suggests where to draw the result of a row: past the equals sign if
// there is one, otherwise diagonally past the last symbol.
func (r *run) place(eq, last *glyph.Candidate) *Placement {
	if eq != nil {
		s := eq.Size()
		return &Placement{X: eq.Pos.X + s.X + r.p.Policy.EqualsGap, Y: eq.Pos.Y + s.Y, Width: s.X, Height: s.Y}
	}
	s := last.Size()
	d := r.p.Policy.Diagonal
	return &Placement{X: last.Pos.X + s.X + d, Y: last.Pos.Y + s.Y + d, Width: s.X, Height: s.Y}
}

// fatal reports whether err abandons a submission.
func fatal(err error) bool {
	var u *UnknownSymbolError
	var c *ClassifyError
	return errors.As(err, &u) || errors.As(err, &c)
}
