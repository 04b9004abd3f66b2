package scribble_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/zephyrtronium/scribble"
)

func FuzzEval(f *testing.F) {
	f.Add("x")
	f.Add("y = x")
	f.Add("1 x 2")
	f.Fuzz(func(t *testing.T, s string) {
		env := scribble.NewEnv(scribble.SetVar("x", new(big.Float)))
		scribble.Evaluate(strings.Fields(s), env)
	})
}
