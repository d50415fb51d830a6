package billing

import (
	"fmt"

	invoice "tariff-advisor/internal/invoice/domain"
	tariff "tariff-advisor/internal/tariff/domain"
)

// Demand slot names.
const (
	SlotSingle  = "unica"
	SlotPeak    = invoice.PeriodPeak
	SlotOffPeak = invoice.PeriodOffPeak
)

// DemandSlot is one contracted demand term. Measured demand is the largest
// reading among Periods.
type DemandSlot struct {
	Name       string
	Periods    []string
	RateKey    tariff.RateKey
	Contracted string
}

// Profile captures what differs between modalities: the energy rate keys
// per period and the demand slots billed.
type Profile struct {
	Modality           tariff.Modality
	PeakEnergy         []tariff.RateKey
	OffPeakEnergy      []tariff.RateKey
	IntermediateEnergy []tariff.RateKey
	DemandSlots        []DemandSlot
}

var (
	// Green bills one demand, measured as the larger of the peak and
	// off-peak readings, at the off-peak demand rate.
	Green = Profile{
		Modality:      tariff.ModalityGreen,
		PeakEnergy:    []tariff.RateKey{tariff.TEPeak, tariff.TUSDPeak},
		OffPeakEnergy: []tariff.RateKey{tariff.TEOffPeak, tariff.TUSDOffPeak},
		DemandSlots: []DemandSlot{{
			Name:       SlotSingle,
			Periods:    []string{invoice.PeriodPeak, invoice.PeriodOffPeak},
			RateKey:    tariff.DemandOffPeak,
			Contracted: invoice.PeriodOffPeak,
		}},
	}

	// Blue bills peak and off-peak demand separately.
	Blue = Profile{
		Modality:      tariff.ModalityBlue,
		PeakEnergy:    []tariff.RateKey{tariff.TEPeak, tariff.TUSDPeak},
		OffPeakEnergy: []tariff.RateKey{tariff.TEOffPeak, tariff.TUSDOffPeak},
		DemandSlots: []DemandSlot{
			{Name: SlotPeak, Periods: []string{invoice.PeriodPeak}, RateKey: tariff.DemandPeak, Contracted: invoice.PeriodPeak},
			{Name: SlotOffPeak, Periods: []string{invoice.PeriodOffPeak}, RateKey: tariff.DemandOffPeak, Contracted: invoice.PeriodOffPeak},
		},
	}

	// Conventional prices every kWh at the flat off-peak rates and has no demand term.
	Conventional = Profile{
		Modality:      tariff.ModalityConventional,
		PeakEnergy:    []tariff.RateKey{tariff.TEOffPeak, tariff.TUSDOffPeak},
		OffPeakEnergy: []tariff.RateKey{tariff.TEOffPeak, tariff.TUSDOffPeak},
	}

	// White is the low-voltage time-of-use modality with an intermediate period.
	White = Profile{
		Modality:           tariff.ModalityWhite,
		PeakEnergy:         []tariff.RateKey{tariff.TEPeak, tariff.TUSDPeak},
		OffPeakEnergy:      []tariff.RateKey{tariff.TEOffPeak, tariff.TUSDOffPeak},
		IntermediateEnergy: []tariff.RateKey{tariff.TEIntermediate, tariff.TUSDIntermediate},
	}
)

// ProfileFor returns the built-in profile for a modality.
func ProfileFor(modality tariff.Modality) (Profile, error) {
	for _, p := range []Profile{Green, Blue, Conventional, White} {
		if p.Modality.Same(modality) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", tariff.ErrModalityNotFound, modality)
}

// DemandConfig sets the contracted demand to bill. Green reads OffPeak only.
type DemandConfig struct {
	Peak    float64 `json:"ponta_kw"`
	OffPeak float64 `json:"fora_ponta_kw"`
}

// GreenDemand is the config for a single green contracted demand.
func GreenDemand(kw float64) *DemandConfig {
	return &DemandConfig{OffPeak: kw}
}

// BlueDemand is the config for split blue contracted demands.
func BlueDemand(peak, offPeak float64) *DemandConfig {
	return &DemandConfig{Peak: peak, OffPeak: offPeak}
}

func (c *DemandConfig) value(contracted string) float64 {
	if contracted == invoice.PeriodPeak {
		return c.Peak
	}
	return c.OffPeak
}
