package scribble

import (
	"strings"
)

// expression = term { '=' term }
// term       = factor { ('+' | '-') factor }
// factor     = func term | operand { ('*' | '/') operand }
// operand    = func term | primary
// primary    = '(' term ')' | num | char

// Expr is a parsed expression that can be evaluated with an environment.
type Expr struct {
	// n is the root node of the expression.
	n *node
	// names is the list of variable names used in the expression.
	names []string
}

type parser struct {
	toks []Token
	i    int
	p    *parsectx
	// end is the position reported for errors at the end of input.
	end int
}

// Parse parses a sequence of tokens into an expression. The given options are
// applied in order.
//
// Every equals sign folds the expression so far and the term following it into
// an assignment, so A = B = C assigns C to both A and B. Assignments cannot
// appear inside brackets or function arguments. A function name consumes the
// entire additive term after it as its argument, so "sqrt 9 + 7" is the square
// root of 16. Numbers, variables, and bracketed terms are the only primaries;
// in particular, there is no unary minus.
func Parse(tokens []Token, opts ...ParseOption) (*Expr, error) {
	p := newparsectx(opts)
	return parse(tokens, &p)
}

// ParseLabels tokenizes and parses a sequence of labels.
func ParseLabels(labels []string, opts ...ParseOption) (*Expr, error) {
	p := newparsectx(opts)
	toks, err := tokenize(labels, &p)
	if err != nil {
		return nil, err
	}
	return parse(toks, &p)
}

func parse(tokens []Token, p *parsectx) (*Expr, error) {
	s := parser{toks: tokens, p: p, end: 1}
	if len(tokens) > 0 {
		s.end = tokens[len(tokens)-1].Pos + 1
	}
	n, err := s.parseexpr()
	if err != nil {
		return nil, err
	}
	if tok, ok := s.peek(); ok {
		if tok.Kind == TokenChar && tok.Text == ")" {
			return nil, &BracketError{Col: tok.Pos, Right: tok.Text}
		}
		return nil, &TrailingError{Col: tok.Pos, Token: tok}
	}
	ex := Expr{
		n:     n,
		names: make([]string, 0, len(p.names)),
	}
	for k := range p.names {
		ex.names = append(ex.names, k)
	}
	sortstrs(ex.names)
	return &ex, nil
}

// sortstrs sorts a string slice without using package sort because that has
// reflection and allocation problems.
func sortstrs(names []string) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

func (s *parser) peek() (Token, bool) {
	if s.i >= len(s.toks) {
		return Token{}, false
	}
	return s.toks[s.i], true
}

func (s *parser) next() (Token, bool) {
	tok, ok := s.peek()
	if ok {
		s.i++
	}
	return tok, ok
}

// parseexpr parses a full expression, including assignments.
func (s *parser) parseexpr() (*node, error) {
	n, err := s.parseterm()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := s.peek()
		if !ok || tok.Kind != TokenEquals {
			return n, nil
		}
		s.i++
		if err := assignable(n, tok.Pos); err != nil {
			return nil, err
		}
		if _, ok := s.peek(); !ok {
			// The evaluator reports the missing value.
			return &node{kind: nodeAssign, pos: tok.Pos, left: n}, nil
		}
		rhs, err := s.parseterm()
		if err != nil {
			return nil, err
		}
		n = &node{kind: nodeAssign, pos: tok.Pos, left: n, right: rhs}
	}
}

// assignable checks that the last term folded into n is a variable.
func assignable(n *node, pos int) error {
	t := n
	if n.kind == nodeAssign {
		t = n.right
	}
	if t.kind != nodeName {
		return &AssignError{Col: pos, Target: strings.Trim(t.String(), "()")}
	}
	return nil
}

// parseterm parses an additive term.
func (s *parser) parseterm() (*node, error) {
	n, err := s.parsefactor()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := s.peek()
		if !ok || tok.Kind != TokenOp {
			return n, nil
		}
		var k nodeKind
		switch tok.Text {
		case "+":
			k = nodeAdd
		case "-":
			k = nodeSub
		default:
			return n, nil
		}
		s.i++
		rhs, err := s.parsefactor()
		if err != nil {
			return nil, err
		}
		n = &node{kind: k, pos: tok.Pos, left: n, right: rhs}
	}
}

// parsefactor parses a multiplicative term or a function call.
func (s *parser) parsefactor() (*node, error) {
	if n, ok, err := s.parsecall(); ok || err != nil {
		return n, err
	}
	n, err := s.parseprimary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := s.peek()
		if !ok || tok.Kind != TokenOp {
			return n, nil
		}
		var k nodeKind
		switch tok.Text {
		case "*":
			k = nodeMul
		case "/":
			k = nodeDiv
		default:
			return n, nil
		}
		s.i++
		rhs, ok, err := s.parsecall()
		if err != nil {
			return nil, err
		}
		if !ok {
			rhs, err = s.parseprimary()
			if err != nil {
				return nil, err
			}
		}
		n = &node{kind: k, pos: tok.Pos, left: n, right: rhs}
	}
}

// parsecall parses a function call if the next token is a function name. The
// second result reports whether there was one.
func (s *parser) parsecall() (*node, bool, error) {
	tok, ok := s.peek()
	if !ok || tok.Kind != TokenOp {
		return nil, false, nil
	}
	fn := s.p.funcs[tok.Text]
	if fn == nil {
		return nil, false, nil
	}
	s.i++
	arg, err := s.parseterm()
	if err != nil {
		return nil, true, err
	}
	return &node{kind: nodeCall, name: tok.Text, fn: fn, pos: tok.Pos, left: arg}, true, nil
}

// parseprimary parses a number, a variable, or a bracketed term.
func (s *parser) parseprimary() (*node, error) {
	tok, ok := s.next()
	if !ok {
		return nil, &EmptyExpressionError{Col: s.end}
	}
	switch tok.Kind {
	case TokenNum:
		return &node{kind: nodeNum, name: tok.Text, pos: tok.Pos}, nil
	case TokenChar:
		switch tok.Text {
		case "(":
			return s.parsegroup(tok)
		case ")":
			return nil, &BracketError{Col: tok.Pos, Right: tok.Text}
		}
		s.p.names[normalize(tok.Text)] = true
		return &node{kind: nodeName, name: tok.Text, pos: tok.Pos}, nil
	default:
		return nil, &TokenError{Col: tok.Pos, Token: tok}
	}
}

// parsegroup parses the rest of a bracketed term after its open bracket.
func (s *parser) parsegroup(open Token) (*node, error) {
	if tok, ok := s.peek(); ok && tok.Kind == TokenChar && tok.Text == ")" {
		return nil, &EmptyExpressionError{Col: tok.Pos, End: tok.Text}
	}
	n, err := s.parseterm()
	if err != nil {
		return nil, err
	}
	end, ok := s.next()
	switch {
	case !ok:
		return nil, &BracketError{Col: s.end, Left: open.Text}
	case end.Kind == TokenChar && end.Text == ")":
		return n, nil
	default:
		return nil, &TokenError{Col: end.Pos, Token: end}
	}
}

// Vars returns the normalized names of the variables used in the expression,
// including assignment targets.
func (e *Expr) Vars() []string {
	return append(([]string)(nil), e.names...)
}

// Targets returns the normalized names of the variables the expression
// assigns, in order. The result is nil if the expression is not an
// assignment.
func (e *Expr) Targets() []string {
	if e.n.kind != nodeAssign {
		return nil
	}
	var r []string
	for n := e.n.left; ; n = n.left {
		if n.kind != nodeAssign {
			r = append(r, normalize(n.name))
			break
		}
		r = append(r, normalize(n.right.name))
	}
	// Collected right to left.
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return r
}

// String creates a string representation of the parsed expression, with
// alternating round and square brackets grouping each term.
func (e *Expr) String() string {
	var b strings.Builder
	e.n.fmt(&b, false)
	return b.String()
}
