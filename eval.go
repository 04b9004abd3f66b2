package scribble

import (
	"iter"
	"math/big"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

// Env is a variable environment. Names are case-insensitive; they are stored
// in upper case and iterate in sorted order. It is not safe to use an Env
// concurrently. Callers sharing an Env among several goroutines must
// serialize access to it.
type Env struct {
	vars *treemap.Map
	prec uint
}

// EnvOption is an option used when creating an environment.
type EnvOption interface {
	envOption()
}

type (
	varopt struct {
		name string
		val  *big.Float
	}
	varsopt map[string]*big.Float
	precopt uint
)

func (varopt) envOption()  {}
func (varsopt) envOption() {}
func (precopt) envOption() {}

// SetVar sets the value of a variable in the environment.
func SetVar(name string, val *big.Float) EnvOption {
	return varopt{name, val}
}

// SetVars sets the values of any number of variables in the environment.
func SetVars(vars map[string]*big.Float) EnvOption {
	return varsopt(vars)
}

// Prec sets the precision of calculations.
func Prec(prec uint) EnvOption {
	return precopt(prec)
}

// NewEnv creates a new environment. If no precision is given, the default is
// 64.
func NewEnv(opts ...EnvOption) *Env {
	env := Env{vars: treemap.NewWithStringComparator(), prec: 64}
	return env.Clone(opts...)
}

// normalize converts a variable name to its canonical form.
func normalize(name string) string {
	return strings.ToUpper(name)
}

// Set sets the value of a variable. Returns env for chaining.
func (env *Env) Set(name string, value *big.Float) *Env {
	env.vars.Put(normalize(name), new(big.Float).SetPrec(env.prec).Set(value))
	return env
}

// Delete removes a variable.
func (env *Env) Delete(name string) {
	env.vars.Remove(normalize(name))
}

// Reset removes all variables.
func (env *Env) Reset() {
	env.vars.Clear()
}

// Lookup returns a copy of the value of a variable. If there is no such
// variable in the environment, then the result is nil.
func (env *Env) Lookup(name string) *big.Float {
	v, ok := env.vars.Get(normalize(name))
	if !ok {
		return nil
	}
	return new(big.Float).Copy(v.(*big.Float))
}

// Len returns the number of variables in the environment.
func (env *Env) Len() int {
	return env.vars.Size()
}

// Names returns the names of all variables in sorted order.
func (env *Env) Names() []string {
	r := make([]string, 0, env.vars.Size())
	for _, k := range env.vars.Keys() {
		r = append(r, k.(string))
	}
	return r
}

// All iterates over the variables in sorted order. The values are owned by
// the environment and must not be modified.
func (env *Env) All() iter.Seq2[string, *big.Float] {
	return func(yield func(string, *big.Float) bool) {
		it := env.vars.Iterator()
		for it.Next() {
			if !yield(it.Key().(string), it.Value().(*big.Float)) {
				return
			}
		}
	}
}

// Prec returns the precision to which values are computed in the environment.
func (env *Env) Prec() uint {
	return env.prec
}

// Clone creates a copy of an environment and applies options to it.
func (env *Env) Clone(opts ...EnvOption) *Env {
	n := Env{vars: treemap.NewWithStringComparator(), prec: env.prec}
	// First, check for a precision setting. Loop backward so we apply the last
	// precision.
	for i := len(opts) - 1; i >= 0; i-- {
		if p, ok := opts[i].(precopt); ok {
			n.prec = uint(p)
			break
		}
	}
	// Values are never modified in place, so we can share them at the same
	// precision.
	for name, val := range env.All() {
		if n.prec != env.prec {
			val = new(big.Float).SetPrec(n.prec).Set(val)
		}
		n.vars.Put(name, val)
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		switch opt := opt.(type) {
		case varopt:
			n.Set(opt.name, opt.val)
		case varsopt:
			for k, v := range opt {
				n.Set(k, v)
			}
		case precopt:
			// Already done. Do nothing.
		default:
			panic("scribble: unknown option type")
		}
	}
	return &n
}

// num parses a number from its text.
func (env *Env) num(s string) *big.Float {
	r, _, err := new(big.Float).SetPrec(env.prec).Parse(s, 10)
	if err != nil {
		// The tokenizer only produces decimal literals.
		panic("scribble: invalid number: " + s + " (" + err.Error() + ")")
	}
	return r
}

// Eval evaluates the expression against env. Evaluating an assignment stores
// the value in env and returns a nil result. If an error occurs, e.g. a missing
// variable definition or division by zero, the result is nil and env is not
// modified.
func (e *Expr) Eval(env *Env) (*big.Float, error) {
	if e.n.kind != nodeAssign {
		return e.n.eval(env)
	}
	if e.n.right == nil {
		return nil, &AssignError{Col: e.n.pos}
	}
	v, err := e.n.right.eval(env)
	if err != nil {
		return nil, err
	}
	for _, name := range e.Targets() {
		env.Set(name, v)
	}
	return nil, nil
}

// eval computes the node's value.
func (n *node) eval(env *Env) (*big.Float, error) {
	switch n.kind {
	case nodeNum:
		return env.num(n.name), nil
	case nodeName:
		v, ok := env.vars.Get(normalize(n.name))
		if !ok {
			return nil, &NameError{Name: normalize(n.name)}
		}
		return new(big.Float).SetPrec(env.prec).Set(v.(*big.Float)), nil
	case nodeCall:
		x, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		r := new(big.Float).SetPrec(env.prec)
		if err := n.fn.Call(env, x, r); err != nil {
			if de, ok := err.(*DomainError); ok && de.Func == "" {
				de.Func = n.name
			}
			return nil, err
		}
		return r, nil
	case nodeAdd, nodeSub, nodeMul, nodeDiv:
		l, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		r, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		switch n.kind {
		case nodeAdd:
			l.Add(l, r)
		case nodeSub:
			l.Sub(l, r)
		case nodeMul:
			l.Mul(l, r)
		case nodeDiv:
			if r.Sign() == 0 {
				return nil, &ArithmeticError{Op: "/", X: l}
			}
			l.Quo(l, r)
		}
		return l, nil
	case nodeAssign:
		panic("scribble: assignment below the root")
	default:
		panic("scribble: invalid AST node " + n.kind.String())
	}
}

// Evaluate is a shortcut to parse a label sequence and evaluate it against env.
// A trailing equals sign asks for the value of the labels before it, so
// "2 + 3 =" evaluates to 5. The result is nil for an assignment.
func Evaluate(labels []string, env *Env, opts ...ParseOption) (*big.Float, error) {
	e, err := ParseLabels(Query(labels), opts...)
	if err != nil {
		return nil, err
	}
	return e.Eval(env)
}

// Query removes a trailing equals sign from a label sequence of more than one
// label. The result shares storage with labels.
func Query(labels []string) []string {
	if n := len(labels); n > 1 && labels[n-1] == "=" {
		return labels[:n-1]
	}
	return labels
}

// Format renders a value for display. Integral values have no fraction;
// others are rounded to the given number of decimals. A nil value renders as
// the empty string.
func Format(v *big.Float, decimals int) string {
	if v == nil {
		return ""
	}
	if v.IsInt() {
		return v.Text('f', 0)
	}
	return v.Text('f', decimals)
}

// Literal renders a value as a decimal literal which the tokenizer reads back
// as a single number with no loss of precision.
func Literal(v *big.Float) string {
	if v.IsInt() {
		return v.Text('f', 0)
	}
	return v.Text('f', -1)
}
