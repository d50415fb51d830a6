package reporting

import "errors"

var (
	// ErrNoInvoices is returned when a table is requested for an empty batch.
	ErrNoInvoices = errors.New("reporting: no invoices")
	// ErrIncompleteTable is returned when a modality could not bill every month.
	ErrIncompleteTable = errors.New("reporting: incomplete table")
)
