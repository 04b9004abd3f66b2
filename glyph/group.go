package glyph

import (
	"cmp"
	"fmt"
	"image"
	"slices"
)

// Contour is a connected region of ink found in an image.
type Contour struct {
	// Box is the bounding box of the region.
	Box Box
	// Area is the area enclosed by the region's outline. If it is zero, the
	// area of the box is used instead.
	Area float64
}

func (c Contour) area() float64 {
	if c.Area > 0 {
		return c.Area
	}
	return float64(c.Box.Area())
}

// Shape is what geometry alone says a candidate is.
type Shape int8

const (
	// ShapeGlyph is a symbol to be read by a classifier.
	ShapeGlyph Shape = iota
	// ShapeEquals is a pair of bars. It still goes to the classifier, which
	// is expected to read it as "=".
	ShapeEquals
	// ShapeMinus is a single bar. It has no raster and is always a minus.
	ShapeMinus
)

func (s Shape) String() string {
	switch s {
	case ShapeGlyph:
		return "glyph"
	case ShapeEquals:
		return "equals"
	case ShapeMinus:
		return "minus"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Candidate is a region which may be a symbol.
type Candidate struct {
	// Key is the index of the contour which produced the candidate.
	Key int
	// Box is the extent of the candidate's ink.
	Box Box
	// Pos is the anchor used to arrange candidates into rows.
	Pos image.Point
	// Shape is the kind of candidate.
	Shape Shape
	// Raster is the image for the classifier, in the coordinates of the
	// source image. It is nil for ShapeMinus.
	Raster image.Image
	// Children are the rows of candidates contained within this one, as
	// indices into the same arena.
	Children []Row
}

// Size returns the size of the candidate's raster, or of its box if it has
// none.
func (c *Candidate) Size() image.Point {
	if c.Raster == nil {
		return image.Pt(c.Box.W, c.Box.H)
	}
	return c.Raster.Bounds().Size()
}

// Row is a sequence of candidates in reading order, as indices into an arena.
type Row []int

// Layout is the result of grouping one image.
type Layout struct {
	// Candidates is the arena holding every candidate, nested ones included.
	Candidates []Candidate
	// Rows are the top-level rows.
	Rows []Row
	// Notes describe what grouping found, for progress reports.
	Notes []string
}

// Grouper turns contours into candidates. The zero value is not useful; start
// from DefaultGrouper.
type Grouper struct {
	// MinArea is the smallest contour area that can be a symbol.
	MinArea float64
	// Tolerance is how far outside a box another box may extend and still be
	// contained in it.
	Tolerance int
	// LineAspect and LineHeight bound the shape of bars: a box is a bar if
	// its aspect ratio exceeds LineAspect and its height is less than
	// LineHeight.
	LineAspect float64
	LineHeight int
	// NarrowWidth and NarrowAspect bound the shape of narrow glyphs, which
	// are usually ones: a box is narrow if it is thinner than NarrowWidth and
	// its aspect ratio is at most NarrowAspect.
	NarrowWidth  int
	NarrowAspect float64
	// Pad is the white margin added around narrow glyphs and equals signs.
	Pad int
	// MarginLeft and MarginRight widen the crop of other glyphs.
	MarginLeft, MarginRight int
	// EqualsDX and EqualsDY are the exclusive bounds on the distance between
	// two bars that form an equals sign.
	EqualsDX, EqualsDY int
	// RowThreshold is the row threshold for top-level candidates.
	RowThreshold int
	// ChildRowThreshold is the row threshold for contained candidates.
	ChildRowThreshold int
}

// DefaultGrouper returns a Grouper with the standard parameters.
func DefaultGrouper() Grouper {
	return Grouper{
		MinArea:           20,
		Tolerance:         20,
		LineAspect:        2,
		LineHeight:        50,
		NarrowWidth:       20,
		NarrowAspect:      0.5,
		Pad:               15,
		MarginLeft:        6,
		MarginRight:       12,
		EqualsDX:          50,
		EqualsDY:          80,
		RowThreshold:      80,
		ChildRowThreshold: 100,
	}
}

// grouping is the state of one pass over an image.
type grouping struct {
	g        *Grouper
	img      image.Image
	contours []Contour
	visited  []bool
	layout   *Layout
}

// Group groups the contours of img into candidates and rows.
//
// Contours are visited left to right, then top to bottom. Contours which are
// too small or which span the full width of the image are ignored. Bars are
// set aside and later paired into equals signs or left as minus signs. A
// glyph which contains other contours claims them as its children; each
// contour is claimed at most once, and claimed regions are painted white in
// the parent's raster.
func (g *Grouper) Group(img image.Image, contours []Contour) (*Layout, error) {
	s := grouping{
		g:        g,
		img:      img,
		contours: contours,
		visited:  make([]bool, len(contours)),
		layout:   &Layout{},
	}
	order, err := s.order()
	if err != nil {
		return nil, err
	}
	var lines, top []int
	for _, i := range order {
		if s.visited[i] {
			continue
		}
		s.visited[i] = true
		b := contours[i].Box
		switch {
		case g.isLine(b):
			lines = append(lines, i)
		case b.W < g.NarrowWidth && b.Aspect() <= g.NarrowAspect:
			s.note("contour %d is a narrow glyph, possibly a one", i)
			top = append(top, s.add(Candidate{
				Key:    i,
				Box:    b,
				Pos:    b.Anchor(),
				Raster: pad(img, b.Rect(), g.Pad),
			}))
		default:
			top = append(top, s.container(i, order))
		}
	}
	top = append(top, s.lines(lines)...)
	s.layout.Rows = Rows(s.layout.Candidates, top, g.RowThreshold)
	return s.layout, nil
}

// order filters the contours and returns the indices of the remainder in
// scan order.
func (s *grouping) order() ([]int, error) {
	bounds := s.img.Bounds()
	order := make([]int, 0, len(s.contours))
	for i, c := range s.contours {
		if err := c.Box.Validate(); err != nil {
			err.(*GeometryError).Index = i
			return nil, err
		}
		if c.area() < s.g.MinArea {
			continue
		}
		if c.Box.X <= bounds.Min.X && c.Box.X+c.Box.W >= bounds.Max.X {
			// Page border.
			continue
		}
		order = append(order, i)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		p, q := s.contours[a].Box, s.contours[b].Box
		if c := cmp.Compare(p.X, q.X); c != 0 {
			return c
		}
		return cmp.Compare(p.Y, q.Y)
	})
	return order, nil
}

// container adds the glyph for contour i along with every unclaimed contour
// it contains. It returns the arena index of the glyph.
func (s *grouping) container(i int, order []int) int {
	g := s.g
	b := s.contours[i].Box
	bounds := s.img.Bounds()
	raster := crop(s.img, margins(b.Rect(), g.MarginLeft, g.MarginRight, bounds))
	k := s.add(Candidate{Key: i, Box: b, Pos: b.Anchor(), Raster: raster})
	var kids []int
	for _, j := range order {
		if s.visited[j] {
			continue
		}
		o := s.contours[j].Box
		if !b.Contains(o, g.Tolerance) {
			continue
		}
		s.visited[j] = true
		s.note("contour %d contains contour %d", i, j)
		c := Candidate{Key: j, Box: o, Pos: o.Anchor()}
		r := margins(o.Rect(), g.MarginLeft, g.MarginRight, bounds)
		if g.isLine(o) {
			// A contained bar is read as a minus, like a top-level bar.
			c.Shape = ShapeMinus
		} else {
			c.Raster = crop(s.img, r)
		}
		blank(raster, r)
		kids = append(kids, s.add(c))
	}
	if len(kids) > 0 {
		s.layout.Candidates[k].Children = Rows(s.layout.Candidates, kids, g.ChildRowThreshold)
	}
	return k
}

// lines pairs bars into equals signs in the order they were found. Unpaired
// bars become minus signs. It returns the arena indices of the results.
func (s *grouping) lines(lines []int) []int {
	g := s.g
	handled := make([]bool, len(lines))
	var r []int
	for a, i := range lines {
		if handled[a] {
			continue
		}
		handled[a] = true
		p := s.contours[i].Box
		found := false
		for b := a + 1; b < len(lines); b++ {
			if handled[b] {
				continue
			}
			j := lines[b]
			q := s.contours[j].Box
			dx, dy := p.Distance(q)
			if dy >= g.EqualsDY || dx >= g.EqualsDX {
				continue
			}
			handled[b] = true
			found = true
			s.note("contours %d and %d form an equals sign", i, j)
			u := equalsBox(p, q)
			r = append(r, s.add(Candidate{
				Key:    i,
				Box:    u,
				Pos:    u.Anchor(),
				Shape:  ShapeEquals,
				Raster: pad(s.img, u.Rect(), g.Pad),
			}))
			break
		}
		if !found {
			r = append(r, s.add(Candidate{Key: i, Box: p, Pos: p.Anchor(), Shape: ShapeMinus}))
		}
	}
	return r
}

// equalsBox is the region covering two bars, measured from the nearer
// corner to the farther corner extended by the larger bar.
func equalsBox(p, q Box) Box {
	w, h := max(p.W, q.W), max(p.H, q.H)
	x0, y0 := min(p.X, q.X), min(p.Y, q.Y)
	x1, y1 := max(p.X, q.X)+w, max(p.Y, q.Y)+h
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func (g *Grouper) isLine(b Box) bool {
	return b.Aspect() > g.LineAspect && b.H < g.LineHeight
}

func (s *grouping) add(c Candidate) int {
	s.layout.Candidates = append(s.layout.Candidates, c)
	return len(s.layout.Candidates) - 1
}

func (s *grouping) note(format string, args ...any) {
	s.layout.Notes = append(s.layout.Notes, fmt.Sprintf(format, args...))
}
