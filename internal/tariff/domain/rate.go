package tariff

import (
	"fmt"
	"sort"
	"strings"

	"tariff-advisor/internal/ptbr"
)

// Modality is the lower-cased modality name as printed in the rate table.
type Modality string

const (
	ModalityBlue         Modality = "azul"
	ModalityGreen        Modality = "verde"
	ModalityWhite        Modality = "branca"
	ModalityConventional Modality = "convencional"
	// ModalityPrepaid carries the TE used to price excess reactive energy.
	ModalityPrepaid Modality = "convencional pré-pagamento"
)

// NormalizeModality trims and lower-cases a modality name.
func NormalizeModality(raw string) Modality {
	return Modality(strings.ToLower(strings.TrimSpace(raw)))
}

// Same compares modalities ignoring case and accents.
func (m Modality) Same(other Modality) bool {
	return ptbr.Fold(string(m)) == ptbr.Fold(string(other))
}

// RateKey names one unit rate inside a RateSet.
type RateKey string

const (
	TEPeak           RateKey = "TEponta"
	TUSDPeak         RateKey = "TUSDponta"
	TEOffPeak        RateKey = "TEforaPonta"
	TUSDOffPeak      RateKey = "TUSDforaPonta"
	TEIntermediate   RateKey = "TEintermediario"
	TUSDIntermediate RateKey = "TUSDintermediario"
	DemandPeak       RateKey = "DemandaPonta"
	DemandOffPeak    RateKey = "DemandaForaPonta"
)

// IsEnergy reports whether the key is priced per energy unit (R$/MWh in the table).
func (k RateKey) IsEnergy() bool {
	switch k {
	case TEPeak, TUSDPeak, TEOffPeak, TUSDOffPeak, TEIntermediate, TUSDIntermediate:
		return true
	}
	return false
}

// RateSet is the flat map of unit rates for one modality.
type RateSet struct {
	Modality Modality            `json:"modalidade"`
	Rates    map[RateKey]float64 `json:"tarifas"`
}

// NewRateSet copies rates into a new set.
func NewRateSet(modality Modality, rates map[RateKey]float64) RateSet {
	copied := make(map[RateKey]float64, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return RateSet{Modality: modality, Rates: copied}
}

// Has reports whether key is present.
func (s RateSet) Has(key RateKey) bool {
	_, ok := s.Rates[key]
	return ok
}

// Rate returns the rate for key or ErrMissingRate.
func (s RateSet) Rate(key RateKey) (float64, error) {
	v, ok := s.Rates[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s %s", ErrMissingRate, s.Modality, key)
	}
	return v, nil
}

// Sum adds the rates for keys, failing on the first missing one.
func (s RateSet) Sum(keys ...RateKey) (float64, error) {
	var total float64
	for _, key := range keys {
		v, err := s.Rate(key)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// RateSets groups the compacted sets of one period and distributor.
type RateSets struct {
	Period      string               `json:"periodo"`
	Distributor string               `json:"distribuidora"`
	Sets        map[Modality]RateSet `json:"modalidades"`
	ERE         *float64             `json:"tarifa_ere,omitempty"`
}

// Set returns the rate set for modality, matched ignoring accents.
func (r RateSets) Set(modality Modality) (RateSet, error) {
	if set, ok := r.Sets[modality]; ok {
		return set, nil
	}
	for m, set := range r.Sets {
		if m.Same(modality) {
			return set, nil
		}
	}
	return RateSet{}, fmt.Errorf("%w: %s", ErrModalityNotFound, modality)
}

// EREValue returns the reactive-excess rate.
func (r RateSets) EREValue() (float64, error) {
	if r.ERE == nil {
		return 0, ErrMissingERE
	}
	return *r.ERE, nil
}

// Modalities lists the available modalities in name order.
func (r RateSets) Modalities() []Modality {
	out := make([]Modality, 0, len(r.Sets))
	for m := range r.Sets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
