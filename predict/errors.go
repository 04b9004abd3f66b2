package predict

import "fmt"

// UnknownSymbolError is an error indicating that the classifier could not
// read a symbol. It abandons the whole submission.
type UnknownSymbolError struct {
	// Row is the row containing the symbol.
	Row Path
	// Index is the position of the symbol within its row.
	Index int
	// Key is the index of the contour that produced the symbol.
	Key int
}

func (err *UnknownSymbolError) Error() string {
	return fmt.Sprintf("%v: unrecognized symbol %d (contour %d)", err.Row, err.Index+1, err.Key)
}

// GroupError is an error indicating that a nested row failed to produce a
// value for the symbol containing it.
type GroupError struct {
	// Row is the nested row.
	Row Path
	// Err is the nested row's error. It is nil if the row evaluated to an
	// assignment.
	Err error
}

func (err *GroupError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("nested %v has no value", err.Row)
	}
	return fmt.Sprintf("nested %v: %v", err.Row, err.Err)
}

func (err *GroupError) Unwrap() error {
	return err.Err
}

// ClassifyError is an error indicating that the classifier failed outright.
// Like an unknown symbol, it abandons the whole submission.
type ClassifyError struct {
	Row   Path
	Index int
	Err   error
}

func (err *ClassifyError) Error() string {
	return fmt.Sprintf("%v: classifying symbol %d: %v", err.Row, err.Index+1, err.Err)
}

func (err *ClassifyError) Unwrap() error {
	return err.Err
}
