package predict

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// EventKind identifies what an Event reports.
type EventKind int8

const (
	// Progress is a diagnostic message.
	Progress EventKind = iota
	// Failure reports an error scoped to a row or to the whole submission.
	Failure
	// Calculation reports the value of a top-level row.
	Calculation
	// Done is the last event of every submission.
	Done
)

func (k EventKind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Failure:
		return "failure"
	case Calculation:
		return "calculation"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one report from a prediction.
type Event struct {
	Kind    EventKind
	Message string
	// Row is the path to the row the event concerns: the index of the
	// top-level row, then the index of each nested row below it. It is nil
	// for events about the whole submission.
	Row Path
	// Err is the error behind a Failure.
	Err error
	// Value and Text are the result of a Calculation. Text is Value formatted
	// for display.
	Value *big.Float
	Text  string
	// Position is where a Calculation suggests drawing its result.
	Position *Placement
	// Results and Vars are set on Done. Vars holds the variables assigned
	// during the submission with their final values.
	Results []Result
	Vars    map[string]*big.Float
	// Aborted is set on Done if the submission was abandoned.
	Aborted bool
}

func (e Event) String() string {
	if e.Row == nil {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Kind.String() + " " + e.Row.String() + ": " + e.Message
}

// Path locates a row, possibly nested, within a layout.
type Path []int

// String formats p 1-based, as "row 2.1".
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("row ")
	for i, x := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(x + 1))
	}
	return b.String()
}

func (p Path) child(i int) Path {
	r := make(Path, len(p), len(p)+1)
	copy(r, p)
	return append(r, i)
}

// Placement is a suggested rectangle on the canvas.
type Placement struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Result is the outcome of one top-level row.
type Result struct {
	// Labels is the full label sequence of the row, including spliced
	// nested results.
	Labels []string
	// Value is the row's value. It is nil for assignments and failures.
	Value *big.Float
	// Err is the row's error, if any.
	Err error
}

// Policy holds the tunable parts of prediction.
type Policy struct {
	// Threshold is the confidence threshold passed to the classifier.
	Threshold float64
	// Decimals is the number of decimals used to format non-integral values.
	Decimals int
	// ReportZero causes rows which evaluate to zero to produce calculation
	// events. Otherwise zero is treated like an assignment: nothing to report.
	ReportZero bool
	// EqualsGap is the horizontal gap between an equals sign and the
	// suggested position of the result.
	EqualsGap int
	// Diagonal is the offset from the last glyph of a row without an equals
	// sign to the suggested position of the result.
	Diagonal int
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: 0.4,
		Decimals:  2,
		EqualsGap: 40,
		Diagonal:  30,
	}
}

func (p *Policy) reportable(v *big.Float) bool {
	return v != nil && (p.ReportZero || v.Sign() != 0)
}
