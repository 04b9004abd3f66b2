// Package glyph recovers the layout of handwritten symbols from their
// bounding boxes.
//
// Grouping works on geometry alone. Two short bars stacked closely are an
// equals sign, a single one is a minus, a box containing others is a symbol
// with nested arguments such as a radical, and everything else is a glyph for
// a classifier to read. Candidates are then arranged into rows, top to bottom
// and left to right.
package glyph

import (
	"fmt"
	"image"
)

// Box is a pixel rectangle with its origin at the top left.
type Box struct {
	X, Y, W, H int
}

// FromRect converts a rectangle to a box.
func FromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect converts b to a rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Aspect returns the ratio of width to height.
func (b Box) Aspect() float64 {
	return float64(b.W) / float64(b.H)
}

// Area returns the area of the box.
func (b Box) Area() int {
	return b.W * b.H
}

// Anchor returns the top left corner of the box.
func (b Box) Anchor() image.Point {
	return image.Pt(b.X, b.Y)
}

// Contains reports whether o lies within b expanded by tol on every side and
// o is no wider or taller than b.
func (b Box) Contains(o Box, tol int) bool {
	if o.W > b.W || o.H > b.H {
		return false
	}
	return o.X >= b.X-tol && o.Y >= b.Y-tol &&
		o.X+o.W <= b.X+b.W+tol && o.Y+o.H <= b.Y+b.H+tol
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return FromRect(b.Rect().Union(o.Rect()))
}

// Distance returns the horizontal and vertical distances between the anchors
// of b and o.
func (b Box) Distance(o Box) (dx, dy int) {
	return abs(b.X - o.X), abs(b.Y - o.Y)
}

// Validate returns a *GeometryError if b has no extent.
func (b Box) Validate() error {
	if b.W <= 0 || b.H <= 0 {
		return &GeometryError{Box: b, Reason: "empty box", Index: -1}
	}
	return nil
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", b.X, b.Y, b.W, b.H)
}

// GeometryError is an error indicating a malformed box.
type GeometryError struct {
	// Box is the malformed box.
	Box Box
	// Reason describes the problem.
	Reason string
	// Index is the index of the contour with the box, or -1.
	Index int
}

func (err *GeometryError) Error() string {
	if err.Index >= 0 {
		return fmt.Sprintf("contour %d: %s %v", err.Index, err.Reason, err.Box)
	}
	return err.Reason + " " + err.Box.String()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
