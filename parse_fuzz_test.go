package scribble_test

import (
	"strings"
	"testing"

	"github.com/zephyrtronium/scribble"
)

func FuzzParse(f *testing.F) {
	f.Add("x = 4")
	f.Add("sqrt ( 1 6 )")
	f.Add("2 x 3 + ( 1 div 2 )")
	f.Fuzz(func(t *testing.T, s string) {
		scribble.ParseLabels(strings.Fields(s))
	})
}
