package tariff

import "errors"

var (
	// ErrMissingRate is returned when a required rate key is absent from a rate set.
	ErrMissingRate = errors.New("tariff: missing rate")
	// ErrNoRates is returned when no table row matches a query.
	ErrNoRates = errors.New("tariff: no rates for query")
	// ErrModalityNotFound is returned when a modality has no compacted rate set.
	ErrModalityNotFound = errors.New("tariff: modality not found")
	// ErrMissingERE is returned when neither conventional modality carries an ERE rate.
	ErrMissingERE = errors.New("tariff: missing ERE rate")
	// ErrEmptyDistributor is returned when a query has no distributor.
	ErrEmptyDistributor = errors.New("tariff: empty distributor")
)
