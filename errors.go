package scribble

import (
	"errors"
	"math/big"
	"strconv"
)

// AmbiguityError is an error indicating an x label that could be neither the
// variable X nor a multiplication sign. It implements InputError.
type AmbiguityError struct {
	// Col is the position of the x label.
	Col int
	// Label is the ambiguous label as recognized.
	Label string
	// Next is the label following it.
	Next string
}

func (err *AmbiguityError) Error() string {
	return errpos(err.Col, "cannot tell whether "+strconv.Quote(err.Label)+" before "+strconv.Quote(err.Next)+" is a variable or a multiplication")
}

func (err *AmbiguityError) Pos() int {
	return err.Col
}

// LabelError is an error indicating a label that cannot be tokenized. It
// implements InputError.
type LabelError struct {
	// Col is the position of the label.
	Col int
	// Label is the label.
	Label string
}

func (err *LabelError) Error() string {
	return errpos(err.Col, "invalid label "+strconv.Quote(err.Label))
}

func (err *LabelError) Pos() int {
	return err.Col
}

// BracketError is an error indicating mismatched brackets in the
// input. It implements InputError.
type BracketError struct {
	// Col is the position of the offending bracket or end of input.
	Col int
	// Left is the opening bracket.
	Left string
	// Right is the mismatched closing bracket.
	Right string
}

func (err *BracketError) Error() string {
	if err.Left == "" {
		return errpos(err.Col, "close bracket "+err.Right+" with no open bracket")
	}
	if err.Right == "" {
		return errpos(err.Col, "open bracket "+err.Left+" with no close bracket")
	}
	return errpos(err.Col, "mismatched bracket: "+err.Left+"expr"+err.Right)
}

func (err *BracketError) Pos() int {
	return err.Col
}

// TokenError is an error indicating a token that cannot appear where it was
// found. It implements InputError.
type TokenError struct {
	// Col is the position of the token.
	Col int
	// Token is the unexpected token.
	Token Token
}

func (err *TokenError) Error() string {
	return errpos(err.Col, "unexpected "+kindname(err.Token.Kind)+" "+strconv.Quote(err.Token.Text))
}

func (err *TokenError) Pos() int {
	return err.Col
}

// TrailingError is an error indicating tokens left over after a complete
// expression. It implements InputError.
type TrailingError struct {
	// Col is the position of the first leftover token.
	Col int
	// Token is the first leftover token.
	Token Token
}

func (err *TrailingError) Error() string {
	return errpos(err.Col, "unexpected "+strconv.Quote(err.Token.Text)+" after end of expression")
}

func (err *TrailingError) Pos() int {
	return err.Col
}

// EmptyExpressionError is an error indicating an empty subexpression.
type EmptyExpressionError struct {
	// Col is the position of the token that ended the subexpression.
	Col int
	// End is the token that ended the subexpression.
	End string
}

func (err *EmptyExpressionError) Error() string {
	if err.End == "" {
		if err.Col <= 1 {
			return errpos(err.Col, "no expression")
		}
		return errpos(err.Col, "no expression at end")
	}
	return errpos(err.Col, "no expression up to "+strconv.Quote(err.End))
}

func (err *EmptyExpressionError) Pos() int {
	return err.Col
}

// AssignError is an error indicating an assignment without a value or to
// something other than a variable. It implements InputError.
type AssignError struct {
	// Col is the position of the equals sign.
	Col int
	// Target is the invalid assignment target, or the empty string if the
	// assignment is missing its right-hand side.
	Target string
}

func (err *AssignError) Error() string {
	if err.Target == "" {
		return errpos(err.Col, "assignment with no right-hand side")
	}
	return errpos(err.Col, "cannot assign to "+strconv.Quote(err.Target))
}

func (err *AssignError) Pos() int {
	return err.Col
}

// errpos is a shortcut to create an error message with a position.
func errpos(pos int, msg string) string {
	return strconv.Itoa(pos) + ": " + msg
}

func kindname(k TokenKind) string {
	switch k {
	case TokenChar:
		return "symbol"
	case TokenNum:
		return "number"
	case TokenOp:
		return "operator"
	case TokenEquals:
		return "equals sign"
	default:
		return "token"
	}
}

// InputError is an error with position information. Every error resulting from
// invalid input implements InputError.
type InputError interface {
	error
	// Pos returns the position of the error as the 1-based index of the
	// label that began the token that caused the error.
	Pos() int
}

var (
	_ InputError = (*AmbiguityError)(nil)
	_ InputError = (*LabelError)(nil)
	_ InputError = (*BracketError)(nil)
	_ InputError = (*TokenError)(nil)
	_ InputError = (*TrailingError)(nil)
	_ InputError = (*EmptyExpressionError)(nil)
	_ InputError = (*AssignError)(nil)
)

// NameError is an error from a lookup for a variable that is missing from the
// environment.
type NameError struct {
	// Name is the name that was missing.
	Name string
}

func (err *NameError) Error() string {
	return "undefined variable: " + strconv.Quote(err.Name)
}

// ArithmeticError is an error from an arithmetic operation with no defined
// result, i.e. division by zero.
type ArithmeticError struct {
	// Op is the operator.
	Op string
	// X is the left operand.
	X *big.Float
}

func (err *ArithmeticError) Error() string {
	return "division by zero: " + err.X.Text('g', 10) + " " + err.Op + " 0"
}

// Kind is a class of failure, used when reporting errors.
type Kind string

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = ""
	// KindTokenize is the kind of errors turning labels into tokens.
	KindTokenize Kind = "tokenize"
	// KindSyntax is the kind of errors in the structure of an expression.
	KindSyntax Kind = "syntax"
	// KindSemantic is the kind of errors evaluating an expression.
	KindSemantic Kind = "semantic"
	// KindOther is the kind of any other error.
	KindOther Kind = "other"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	var (
		amb   *AmbiguityError
		label *LabelError
		brk   *BracketError
		tok   *TokenError
		trail *TrailingError
		empty *EmptyExpressionError
		name  *NameError
		arith *ArithmeticError
		dom   *DomainError
		asgn  *AssignError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &amb), errors.As(err, &label):
		return KindTokenize
	case errors.As(err, &brk), errors.As(err, &tok), errors.As(err, &trail), errors.As(err, &empty), errors.As(err, &asgn):
		return KindSyntax
	case errors.As(err, &name), errors.As(err, &arith), errors.As(err, &dom):
		return KindSemantic
	default:
		return KindOther
	}
}
