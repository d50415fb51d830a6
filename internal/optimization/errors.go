package optimization

import "errors"

var (
	// ErrNotConverged is returned when a search exhausts its evaluation budget.
	ErrNotConverged = errors.New("optimization: not converged")
	// ErrInvalidBounds is returned for an empty or inverted search interval.
	ErrInvalidBounds = errors.New("optimization: invalid bounds")
)
