package glyph

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrganize(t *testing.T) {
	pts := []image.Point{
		{X: 300, Y: 12},
		{X: 10, Y: 400},
		{X: 100, Y: 0},
		{X: 50, Y: 90},
		{X: 200, Y: 430},
		{X: 0, Y: 180},
	}
	id := func(p image.Point) image.Point { return p }
	cases := []struct {
		name      string
		threshold int
		want      [][]image.Point
	}{
		{
			name:      "default",
			threshold: 100,
			want: [][]image.Point{
				// The row continues while each step is within the threshold.
				{{X: 0, Y: 180}, {X: 50, Y: 90}, {X: 100, Y: 0}, {X: 300, Y: 12}},
				{{X: 10, Y: 400}, {X: 200, Y: 430}},
			},
		},
		{
			name:      "tight",
			threshold: 80,
			want: [][]image.Point{
				{{X: 50, Y: 90}, {X: 100, Y: 0}, {X: 300, Y: 12}},
				{{X: 0, Y: 180}},
				{{X: 10, Y: 400}, {X: 200, Y: 430}},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Organize(pts, id, c.threshold))
		})
	}
	assert.Nil(t, Organize(nil, id, 100))
}

func TestRowsStable(t *testing.T) {
	arena := []Candidate{
		{Pos: image.Pt(10, 10)},
		{Pos: image.Pt(10, 10)},
		{Pos: image.Pt(5, 15)},
	}
	rows := Rows(arena, []int{1, 0, 2}, 100)
	assert.Equal(t, []Row{{2, 1, 0}}, rows)
}
