package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNonUniqueResult   = errors.New("query did not return a unique result")
	ErrParameterNotFound = errors.New("parameter not found in query")
	ErrNoTransaction     = errors.New("no active transaction")
	ErrUnsafeSort        = errors.New("unsafe sort expression")
)
