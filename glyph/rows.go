package glyph

import (
	"cmp"
	"image"
	"slices"
)

// Organize arranges items into rows in reading order. Items are ordered by
// the y coordinate of their anchors, and a new row begins wherever the
// distance from the previous item's y exceeds threshold. Each row is then
// ordered by x. Both sorts are stable, so items with equal coordinates keep
// their input order.
func Organize[T any](items []T, anchor func(T) image.Point, threshold int) [][]T {
	if len(items) == 0 {
		return nil
	}
	s := slices.Clone(items)
	slices.SortStableFunc(s, func(a, b T) int {
		return cmp.Compare(anchor(a).Y, anchor(b).Y)
	})
	var rows [][]T
	start := 0
	for i := 1; i < len(s); i++ {
		if abs(anchor(s[i]).Y-anchor(s[i-1]).Y) > threshold {
			rows = append(rows, s[start:i:i])
			start = i
		}
	}
	rows = append(rows, s[start:])
	for _, row := range rows {
		slices.SortStableFunc(row, func(a, b T) int {
			return cmp.Compare(anchor(a).X, anchor(b).X)
		})
	}
	return rows
}

// Rows arranges the candidates at the given arena indices into rows.
func Rows(arena []Candidate, idx []int, threshold int) []Row {
	rows := Organize(idx, func(i int) image.Point { return arena[i].Pos }, threshold)
	r := make([]Row, len(rows))
	for i, row := range rows {
		r[i] = Row(row)
	}
	return r
}
