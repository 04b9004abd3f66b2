// Package scribble evaluates arithmetic written by hand, one recognized
// symbol at a time.
//
// Input is a sequence of labels as produced by a glyph classifier: "1", "2",
// "+", "x", "sqrt", "=", and so on. Adjacent digits form one number, so "1"
// "2" is twelve. An x between two numbers is a multiplication; anywhere else
// it is the variable X. Expressions may assign variables with "=", and the
// variables live in an Env which persists from one expression to the next,
// the way a page of notes does.
//
// Values are arbitrary-precision floats. The square root is always available;
// exp, ln, and log are defined by default as well.
package scribble
