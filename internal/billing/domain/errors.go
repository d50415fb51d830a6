package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTaxRates is returned when the gross-up denominator is not positive.
	ErrInvalidTaxRates = errors.New("billing: invalid tax rates")
	// ErrNoRecords is returned when a batch is empty.
	ErrNoRecords = errors.New("billing: no records")
	// ErrMissingConsumption is returned when an invoice has no active energy reading.
	ErrMissingConsumption = errors.New("billing: missing consumption")
	// ErrMissingContracted is returned when no demand config is given and the invoice lacks a contracted value.
	ErrMissingContracted = errors.New("billing: missing contracted demand")
	// ErrInvalidDemand is returned for negative demand configurations.
	ErrInvalidDemand = errors.New("billing: invalid demand")
)

// InvoiceError ties a billing failure to the invoice that caused it.
type InvoiceError struct {
	Installation string
	Month        string
	Err          error
}

func (e *InvoiceError) Error() string {
	return fmt.Sprintf("billing: invoice %s %s: %v", orUnknown(e.Installation), orUnknown(e.Month), e.Err)
}

func (e *InvoiceError) Unwrap() error { return e.Err }

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
