package scribble

import (
	"errors"
	"math/big"

	"github.com/zephyrtronium/bigfloat"
)

// Func is a function from reals to reals. Every function name registered for
// parsing is an operation keyword which consumes the expression following it
// as its argument.
type Func interface {
	// Call evaluates the function at x. The function must set r to its
	// result and should not use the value of r otherwise. Call must not
	// modify x. The function may but generally should not look up variables
	// in env.
	Call(env *Env, x, r *big.Float) error
}

var globalfuncs = map[string]Func{
	"sqrt": NonNegative(Monadic((*big.Float).Sqrt)),
	"exp":  Monadic(bigfloat.Exp),
	"ln":   NonNegative(Monadic(bigfloat.Log)),
	"log": NonNegative(Monadic(func(out, in *big.Float) *big.Float {
		bigfloat.Log(out, in)
		ten := new(big.Float).SetPrec(out.Prec()).SetFloat64(10)
		bigfloat.Log(ten, ten)
		return out.Quo(out, ten)
	})),
}

// DefaultFuncs returns the names of the functions available by default.
func DefaultFuncs() []string {
	r := make([]string, 0, len(globalfuncs))
	for k := range globalfuncs {
		r = append(r, k)
	}
	sortstrs(r)
	return r
}

// DefaultFunc returns the default function with the given name, or nil if
// there is none.
func DefaultFunc(name string) Func {
	return globalfuncs[name]
}

type monadic struct {
	f func(out, in *big.Float) *big.Float
}

func (m monadic) Call(env *Env, x, r *big.Float) (err error) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		var nan big.ErrNaN
		if e, ok := p.(error); ok && errors.As(e, &nan) {
			err = &DomainError{X: new(big.Float).Copy(x), Arg: 1}
			return
		}
		panic(p)
	}()
	r.SetPrec(env.Prec())
	m.f(r, new(big.Float).Copy(x))
	return nil
}

// Monadic wraps a function of one variable into a Func. f must set out to its
// result; its return value is always ignored. If f is called on an argument
// outside its domain, it should panic with an error of type big.ErrNaN, or
// that unwraps to it.
func Monadic(f func(out, in *big.Float) *big.Float) Func {
	return monadic{f}
}

type nonneg struct {
	f Func
}

func (n nonneg) Call(env *Env, x, r *big.Float) error {
	if x.Sign() < 0 {
		return &DomainError{X: new(big.Float).Copy(x), Arg: 1}
	}
	return n.f.Call(env, x, r)
}

// NonNegative restricts f to non-negative arguments. Calling the result with
// a negative argument returns a *DomainError without calling f.
func NonNegative(f Func) Func {
	return nonneg{f}
}

// DomainError is an error returned when a function is called on arguments
// outside its domain.
type DomainError struct {
	// X is the out-of-domain argument.
	X *big.Float
	// Arg is the 1-based index of the argument.
	Arg int
	// Func is a name identifying the function.
	Func string
}

func (err *DomainError) Error() string {
	r := err.X.Text('g', 10) + " outside domain"
	if err.Func != "" {
		r += " of " + err.Func
	}
	return r
}
