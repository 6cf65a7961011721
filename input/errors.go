package input

import (
	"errors"
	"fmt"
)

// ErrMissingColumn is wrapped by InputError when a requested CSV column is
// not present in the header row.
var ErrMissingColumn = errors.New("column not found in header")

// InputError reports a problem with one of the name sources. It is fatal:
// no query is issued once collection fails.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
