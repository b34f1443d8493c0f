package diag

import (
	"fmt"
)

// FatalError is returned when processing had to stop. It carries everything
// diagnosed so far with the fatal reason as the last entry.
type FatalError struct {
	Diagnostics []Diagnostic
	Err         error
}

func (e *FatalError) Error() string {
	if n := len(e.Diagnostics) - 1; n > 0 {
		return fmt.Sprintf("%v (and %d more diagnostics)", e.Err, n)
	}
	return e.Err.Error()
}

// Unwrap returns buffered diagnostics followed by the fatal reason in place
// of its own diagnostic entry, so the batch works with errors.Is, errors.As
// and multierr.Errors.
func (e *FatalError) Unwrap() []error {
	buffered := e.Diagnostics[:max(0, len(e.Diagnostics)-1)]
	out := make([]error, 0, len(buffered)+1)
	for _, d := range buffered {
		out = append(out, d)
	}
	return append(out, e.Err)
}

// Errors is the same as Unwrap.
func (e *FatalError) Errors() []error {
	return e.Unwrap()
}
