package scribble_test

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/zephyrtronium/scribble"
)

func TestEval(t *testing.T) {
	type vv struct {
		n string
		v float64
	}
	type vc struct {
		vars []vv
		r    float64
	}
	cases := []struct {
		name string
		src  string
		r    []vc
	}{
		{"num", "1", []vc{{nil, 1}}},
		{"digits", "1 2 3", []vc{{nil, 123}}},
		{"ident", "a", []vc{
			{[]vv{{"a", 4}}, 4},
			{[]vv{{"A", 5}}, 5},
			{[]vv{{"a", 6}}, 6},
		}},
		{"x", "x + 1", []vc{
			{[]vv{{"x", 5}}, 6},
			{[]vv{{"X", 6}}, 7},
		}},
		{"add", "4 + 5 + 6", []vc{{nil, 4 + 5 + 6}}},
		{"sub", "4 - 5 - 6", []vc{{nil, 4 - 5 - 6}}},
		{"mul", "4 * 5 * 6", []vc{{nil, 4 * 5 * 6}}},
		{"div", "4 / 5 / 6", []vc{{nil, 4.0 / 5.0 / 6.0}}},
		{"precedence", "3 + 4 * 2", []vc{{nil, 11}}},
		{"grouping", "( 3 + 4 ) * 2", []vc{{nil, 14}}},
		{"x-times", "2 x 3", []vc{{nil, 6}}},
		{"times-div", "8 times 3 div 4", []vc{{nil, 6}}},
		{"comma", "1 , 4", []vc{{nil, 0.25}}},
		{"sqrt-paren", "sqrt ( 9 )", []vc{{nil, 3}}},
		{"sqrt-bare", "sqrt 9", []vc{{nil, 3}}},
		{"sqrt-term", "sqrt 9 + 7", []vc{{nil, 4}}},
		{"sqrt-operand", "2 * sqrt 1 6", []vc{{nil, 8}}},
		{"sqrt-group-term", "sqrt ( 1 6 ) + 1", []vc{{nil, math.Sqrt(17)}}},
		{"sqrt-var", "sqrt a", []vc{{[]vv{{"a", 2.25}}, 1.5}}},
		{"literal", "( -2.5 ) * 2", []vc{{nil, -5}}},
		{"exp", "exp 0", []vc{{nil, 1}}},
		{"ln", "ln 1", []vc{{nil, 0}}},
		{"log", "log 1 0 0 0", []vc{{nil, 3}}},
	}
	env := scribble.NewEnv(scribble.Prec(64))
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := scribble.ParseLabels(strings.Fields(c.src))
			if err != nil {
				t.Fatal(c.src, "failed to parse:", err)
			}
			for _, v := range c.r {
				env := env.Clone()
				for _, x := range v.vars {
					env.Set(x.n, new(big.Float).SetFloat64(x.v))
				}
				r, err := a.Eval(env)
				if err != nil {
					t.Error("evaluation error:", err)
				}
				if r == nil {
					t.Fatal("nil result")
				}
				if f, _ := r.Float64(); math.Abs(f-v.r) > 1e-12 {
					t.Errorf("wrong result: want %g, got %g", v.r, r)
				}
			}
		})
	}
}

func TestEvalAssign(t *testing.T) {
	env := scribble.NewEnv()
	r, err := scribble.Evaluate(strings.Fields("X = 5"), env)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Errorf("assignment gave result %g", r)
	}
	if x := env.Lookup("X"); x == nil || x.Cmp(big.NewFloat(5)) != 0 {
		t.Errorf("X should be 5 but is %v", x)
	}
	r, err = scribble.Evaluate(strings.Fields("X + 1"), env)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Cmp(big.NewFloat(6)) != 0 {
		t.Errorf("X + 1 should be 6 but is %v", r)
	}

	// x is the variable when it comes first.
	if _, err := scribble.Evaluate(strings.Fields("x = 4"), env); err != nil {
		t.Fatal(err)
	}
	if x := env.Lookup("x"); x == nil || x.Cmp(big.NewFloat(4)) != 0 {
		t.Errorf("X should be 4 but is %v", x)
	}

	if _, err := scribble.Evaluate(strings.Fields("a = b = 2 * x"), env); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"A", "B"} {
		if v := env.Lookup(name); v == nil || v.Cmp(big.NewFloat(8)) != 0 {
			t.Errorf("%s should be 8 but is %v", name, v)
		}
	}
	if got, want := env.Names(), []string{"A", "B", "X"}; !reflect.DeepEqual(got, want) {
		t.Errorf("wrong names: want %q, got %q", want, got)
	}
}

func TestEvaluateQuery(t *testing.T) {
	env := scribble.NewEnv(scribble.SetVar("y", big.NewFloat(3)))
	cases := []struct {
		name string
		src  string
		r    float64
	}{
		{"sum", "2 + 3 =", 5},
		{"var", "y =", 3},
		{"expr", "y x 4 =", 12},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := scribble.Evaluate(strings.Fields(c.src), env)
			if err != nil {
				t.Fatal(err)
			}
			if f, _ := r.Float64(); f != c.r {
				t.Errorf("wrong result: want %g, got %g", c.r, r)
			}
		})
	}
	if env.Len() != 1 {
		t.Errorf("queries changed the environment: %q", env.Names())
	}
}

func TestEvalUndefNames(t *testing.T) {
	cases := []struct {
		name string
		src  string
		r    []string
	}{
		{"a", "a", []string{"A"}},
		{"add-lhs", "a + 1", []string{"A"}},
		{"add-rhs", "1 + a", []string{"A"}},
		{"sub-lhs", "a - 1", []string{"A"}},
		{"sub-rhs", "1 - a", []string{"A"}},
		{"mul-lhs", "a * 1", []string{"A"}},
		{"mul-rhs", "1 * a", []string{"A"}},
		{"div-lhs", "a / 1", []string{"A"}},
		{"div-rhs", "1 / a", []string{"A"}},
		{"call", "sqrt ( a )", []string{"A"}},
		{"assign", "b = a", []string{"A", "B"}},
	}
	ure := regexp.MustCompile(`(?i)\bundef`)
	vre := regexp.MustCompile(`(?i)\bvar`)
	env := scribble.NewEnv(scribble.Prec(64))
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, err := scribble.ParseLabels(strings.Fields(c.src))
			if err != nil {
				t.Fatalf("%q failed to parse: %v", c.src, err)
			}
			if v := a.Vars(); !reflect.DeepEqual(c.r, v) {
				t.Errorf("%q gave wrong variables: want %q, got %q", c.src, c.r, v)
			}
			r, err := a.Eval(env)
			if r != nil {
				t.Errorf("evaluating %q gave non-nil result %g", c.src, r)
			}
			if err == nil {
				t.Fatalf("evaluating %q gave no error", c.src)
			}
			u, ok := err.(*scribble.NameError)
			if !ok {
				t.Fatalf("error was %#v, not NameError", err)
			}
			if scribble.KindOf(err) != scribble.KindSemantic {
				t.Errorf("%v has kind %q", err, scribble.KindOf(err))
			}
			msg := err.Error()
			if !ure.MatchString(msg) {
				t.Errorf(`%q doesn't mention "undef"`, msg)
			}
			if !vre.MatchString(msg) {
				t.Errorf(`%q doesn't mention "var"`, msg)
			}
			if u.Name != "A" {
				t.Errorf("NameError on %q, not A", u.Name)
			}
		})
	}
	if env.Len() != 0 {
		t.Errorf("failed evaluations changed the environment: %q", env.Names())
	}
}

func TestEvalFuncError(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"sqrt", "sqrt ( 0 - 1 )"},
		{"sqrt-literal", "sqrt ( -4 )"},
		{"ln", "ln ( 0 - 1 )"},
		{"log", "log ( -1 )"},
	}
	env := scribble.NewEnv(scribble.Prec(64))
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := scribble.Evaluate(strings.Fields(c.src), env)
			if r != nil {
				t.Errorf("evaluating %q gave non-nil result %g", c.src, r)
			}
			if err == nil {
				t.Fatalf("evaluating %q gave no error", c.src)
			}
			var de *scribble.DomainError
			if !errors.As(err, &de) {
				t.Fatalf("%#v is not *scribble.DomainError", err)
			}
			if de.Func != c.name && !strings.HasPrefix(c.name, de.Func+"-") {
				t.Errorf("domain error names %q", de.Func)
			}
			if scribble.KindOf(err) != scribble.KindSemantic {
				t.Errorf("%v has kind %q", err, scribble.KindOf(err))
			}
		})
	}
}

func TestEvalOpError(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"div-zero", "4 / 0"},
		{"zero-zero", "0 / 0"},
		{"div-alt", "4 div ( 2 - 2 )"},
		{"slash", "4 forward_slash 0"},
	}
	env := scribble.NewEnv()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, err := scribble.Evaluate(strings.Fields(c.src), env)
			if r != nil {
				t.Errorf("evaluating %q gave non-nil result %g", c.src, r)
			}
			if err == nil {
				t.Fatalf("evaluating %q gave no error", c.src)
			}
			if _, ok := err.(*scribble.ArithmeticError); !ok {
				t.Errorf("%#v is not *scribble.ArithmeticError", err)
			}
		})
	}
}

func TestEvalAssignError(t *testing.T) {
	env := scribble.NewEnv()
	a, err := scribble.ParseLabels([]string{"y", "="})
	if err != nil {
		t.Fatal(err)
	}
	r, err := a.Eval(env)
	if r != nil {
		t.Errorf("open assignment gave result %g", r)
	}
	if _, ok := err.(*scribble.AssignError); !ok {
		t.Fatalf("%#v is not *scribble.AssignError", err)
	}
	if !regexp.MustCompile(`(?i)\bright-hand side\b`).MatchString(err.Error()) {
		t.Errorf("%q doesn't mention the right-hand side", err.Error())
	}
	if env.Len() != 0 {
		t.Errorf("open assignment changed the environment: %q", env.Names())
	}
}

func TestEnvVars(t *testing.T) {
	zero := new(big.Float)
	one := new(big.Float).SetFloat64(1)
	env := scribble.NewEnv(scribble.Prec(64), scribble.SetVar("x", zero))
	if x := env.Lookup("X"); x == nil || x.Cmp(zero) != 0 {
		t.Errorf("x should be %[1]v at %[1]p but is %[2]v at %[2]p", zero, x)
	}
	if y := env.Lookup("y"); y != nil {
		t.Errorf("environment has y: %[1]v at %[1]p", y)
	}
	env.Set("y", one)
	if y := env.Lookup("Y"); y == nil || y.Cmp(one) != 0 {
		t.Errorf("y should be %[1]v at %[1]p but is %[2]v at %[2]p", one, y)
	}
	c := env.Clone(scribble.SetVar("x", one))
	if x := env.Lookup("x"); x == nil || x.Cmp(zero) != 0 {
		t.Errorf("clone changed the original: x is %v", x)
	}
	if x := c.Lookup("x"); x == nil || x.Cmp(one) != 0 {
		t.Errorf("x should be %[1]v at %[1]p but is %[2]v at %[2]p", one, x)
	}
	var names []string
	for k := range c.All() {
		names = append(names, k)
	}
	if want := []string{"X", "Y"}; !reflect.DeepEqual(names, want) {
		t.Errorf("wrong iteration order: want %q, got %q", want, names)
	}
	env.Delete("x")
	if env.Lookup("x") != nil || env.Len() != 1 {
		t.Errorf("x not deleted: %q", env.Names())
	}
	env.Reset()
	if env.Len() != 0 {
		t.Errorf("reset left %q", env.Names())
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		name string
		v    *big.Float
		dec  int
		want string
		lit  string
	}{
		{"int", big.NewFloat(7), 2, "7", "7"},
		{"neg-int", big.NewFloat(-12), 2, "-12", "-12"},
		{"half", big.NewFloat(1.5), 2, "1.50", "1.5"},
		{"quarter", big.NewFloat(0.25), 1, "0.2", "0.25"},
		{"nil", nil, 2, "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := scribble.Format(c.v, c.dec); got != c.want {
				t.Errorf("wrong format: want %q, got %q", c.want, got)
			}
			if c.v == nil {
				return
			}
			if got := scribble.Literal(c.v); got != c.lit {
				t.Errorf("wrong literal: want %q, got %q", c.lit, got)
			}
		})
	}
}

func TestLiteralRoundTrip(t *testing.T) {
	env := scribble.NewEnv()
	third, err := scribble.Evaluate([]string{"1", "/", "3"}, env)
	if err != nil {
		t.Fatal(err)
	}
	r, err := scribble.Evaluate([]string{"(", scribble.Literal(third), ")", "*", "3"}, env)
	if err != nil {
		t.Fatal(err)
	}
	if f, _ := r.Float64(); math.Abs(f-1) > 1e-15 {
		t.Errorf("1/3 spliced back gave %g", r)
	}
}

func BenchmarkEval(b *testing.B) {
	vars := map[string]*big.Float{
		"a": big.NewFloat(2),
		"b": big.NewFloat(3),
		"c": big.NewFloat(4),
	}
	b.Run("nums", func(b *testing.B) {
		b.ReportAllocs()
		env := scribble.NewEnv(scribble.Prec(64))
		a, err := scribble.ParseLabels(strings.Fields("2 + 3 + 4"))
		if err != nil {
			b.Fatal(err)
		}
		for i := 0; i < b.N; i++ {
			a.Eval(env)
		}
	})
	b.Run("vars", func(b *testing.B) {
		b.ReportAllocs()
		env := scribble.NewEnv(scribble.SetVars(vars), scribble.Prec(64))
		a, err := scribble.ParseLabels(strings.Fields("a + b + c"))
		if err != nil {
			b.Fatal(err)
		}
		for i := 0; i < b.N; i++ {
			a.Eval(env)
		}
	})
}

func Example() {
	env := scribble.NewEnv(scribble.Prec(64))
	rows := [][]string{
		{"x", "=", "1", "2"},
		{"y", "=", "x", "div", "8"},
		{"y", "+", "sqrt", "(", "1", "6", ")", "="},
		{"2", "x", "3"},
	}
	for _, row := range rows {
		r, err := scribble.Evaluate(row, env)
		switch {
		case err != nil:
			fmt.Println(err)
		case r == nil:
			fmt.Println(strings.Join(row, " "), "(assigned)")
		default:
			fmt.Println(strings.Join(row, " "), "->", scribble.Format(r, 2))
		}
	}

	// Output:
	// x = 1 2 (assigned)
	// y = x div 8 (assigned)
	// y + sqrt ( 1 6 ) = -> 5.50
	// 2 x 3 -> 6
}
