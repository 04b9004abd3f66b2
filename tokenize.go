package scribble

import (
	"strconv"
	"strings"
)

// Token is one unit of a recognized label sequence.
type Token struct {
	// Text is the token's value. Operations are normalized, so "times" has
	// text "*" and "div" has text "/".
	Text string
	// Kind is the type of token.
	Kind TokenKind
	// Pos is the 1-based index of the label that began the token.
	Pos int
}

func (t Token) String() string {
	return t.Kind.String() + ":" + t.Text + "@" + strconv.Itoa(t.Pos)
}

// TokenKind is the type of a token.
type TokenKind int8

const (
	TokenNone TokenKind = iota
	// TokenChar is a variable name or a parenthesis.
	TokenChar
	// TokenNum is a number. Adjacent digit labels produce a single TokenNum.
	TokenNum
	// TokenOp is an operator or a function name.
	TokenOp
	// TokenEquals is the assignment sign.
	TokenEquals
)

func (k TokenKind) String() string {
	switch k {
	case TokenNone:
		return "None"
	case TokenChar:
		return "Char"
	case TokenNum:
		return "Num"
	case TokenOp:
		return "Op"
	case TokenEquals:
		return "Equals"
	default:
		return "TokenKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Operators contains the classifier labels which are always operation
// keywords. Function names registered with the parse options are operation
// keywords as well.
var Operators = []string{"=", "*", "+", "-", "/", "div", "times", "forward_slash", ",", "sqrt"}

// opnorm maps operator labels to the operator they denote.
var opnorm = map[string]string{
	"div":           "/",
	"forward_slash": "/",
	",":             "/",
	"times":         "*",
}

type tokenizer struct {
	labels []string
	funcs  map[string]Func
	toks   []Token
}

// Tokenize converts a sequence of recognized labels into tokens. Labels are
// consumed left to right: parentheses become TokenChar, runs of digit labels
// become a single TokenNum, operator labels become TokenOp (or TokenEquals for
// "="), and any other label is a variable name.
//
// A label x or X is either the variable X or a multiplication sign. It is the
// variable when it is the first or last label or when the label after it is an
// operator. Otherwise it is multiplication, which requires a number to follow;
// anything else is an *AmbiguityError.
func Tokenize(labels []string, opts ...ParseOption) ([]Token, error) {
	p := newparsectx(opts)
	return tokenize(labels, &p)
}

func tokenize(labels []string, p *parsectx) ([]Token, error) {
	t := tokenizer{labels: labels, funcs: p.funcs, toks: make([]Token, 0, len(labels))}
	for i := 0; i < len(labels); {
		tok, next, err := t.scan(i)
		if err != nil {
			return nil, err
		}
		t.toks = append(t.toks, tok)
		i = next
	}
	return t.toks, nil
}

// scan scans the token starting at label i and returns it along with the
// index of the next unscanned label.
func (t *tokenizer) scan(i int) (Token, int, error) {
	s := t.labels[i]
	tok := Token{Pos: i + 1}
	switch {
	case s == "":
		return tok, i, &LabelError{Col: i + 1, Label: s}
	case s == "(" || s == ")":
		tok.Kind, tok.Text = TokenChar, s
		return tok, i + 1, nil
	case isdigits(s):
		var b strings.Builder
		for i < len(t.labels) && isdigits(t.labels[i]) {
			b.WriteString(t.labels[i])
			i++
		}
		tok.Kind, tok.Text = TokenNum, b.String()
		return tok, i, nil
	case isliteral(s):
		// Synthesized results of nested groups may carry a sign or fraction.
		tok.Kind, tok.Text = TokenNum, s
		return tok, i + 1, nil
	case s == "=":
		tok.Kind, tok.Text = TokenEquals, s
		return tok, i + 1, nil
	case t.isop(s):
		tok.Kind, tok.Text = TokenOp, s
		if n, ok := opnorm[s]; ok {
			tok.Text = n
		}
		return tok, i + 1, nil
	case strings.EqualFold(s, "x"):
		return t.timesOrX(i)
	default:
		tok.Kind, tok.Text = TokenChar, s
		return tok, i + 1, nil
	}
}

// timesOrX resolves an x label into either the variable X or a
// multiplication.
func (t *tokenizer) timesOrX(i int) (Token, int, error) {
	tok := Token{Pos: i + 1}
	if i == 0 || i+1 == len(t.labels) || t.isop(t.labels[i+1]) {
		tok.Kind, tok.Text = TokenChar, "X"
		return tok, i + 1, nil
	}
	next := t.labels[i+1]
	if isdigits(next) || isliteral(next) {
		tok.Kind, tok.Text = TokenOp, "*"
		return tok, i + 1, nil
	}
	return tok, i, &AmbiguityError{Col: i + 1, Label: t.labels[i], Next: next}
}

// isop returns whether a label is an operation keyword.
func (t *tokenizer) isop(s string) bool {
	for _, op := range Operators {
		if s == op {
			return true
		}
	}
	return t.funcs[s] != nil
}

// isdigits returns whether s is a non-empty string of ASCII digits.
func isdigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isliteral returns whether s is a decimal literal with an optional leading
// minus sign and optional fraction, e.g. "-2.5".
func isliteral(s string) bool {
	s = strings.TrimPrefix(s, "-")
	w, f, dot := strings.Cut(s, ".")
	if !isdigits(w) {
		return false
	}
	return !dot || isdigits(f)
}
