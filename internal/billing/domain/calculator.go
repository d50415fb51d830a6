package billing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
	tariff "tariff-advisor/internal/tariff/domain"
)

const (
	// DefaultOverageTolerance is the ratio measured/contracted above which overage applies.
	DefaultOverageTolerance = 1.05
	// DefaultOverageMultiplier prices the excess demand over its normal rate.
	DefaultOverageMultiplier = 2.0
)

// Component description terms used by the formula.
var (
	termsFlag      = []string{"bandeira"}
	termsLighting  = []string{"ilum"}
	termsIncomeTax = []string{"imposto de renda", "irrf", "retenc"}
	termsLateFee   = []string{"juros"}
	termsPenalty   = []string{"multa"}
)

// Calculator applies the tax gross-up billing formula for one modality profile.
type Calculator struct {
	profile     Profile
	tolerance   float64
	multiplier  float64
	includeICMS bool
}

// Option configures the calculator.
type Option func(*Calculator)

// WithOverageTolerance overrides the overage tolerance ratio.
func WithOverageTolerance(ratio float64) Option {
	return func(c *Calculator) {
		if ratio > 0 {
			c.tolerance = ratio
		}
	}
}

// WithOverageMultiplier overrides the overage price multiplier.
func WithOverageMultiplier(multiplier float64) Option {
	return func(c *Calculator) {
		if multiplier >= 0 {
			c.multiplier = multiplier
		}
	}
}

// WithICMSInDenominator includes the ICMS rate in the gross-up divisor.
func WithICMSInDenominator(enabled bool) Option {
	return func(c *Calculator) {
		c.includeICMS = enabled
	}
}

// NewCalculator constructs a calculator for profile.
func NewCalculator(profile Profile, opts ...Option) (*Calculator, error) {
	if len(profile.OffPeakEnergy) == 0 || len(profile.PeakEnergy) == 0 {
		return nil, errors.New("billing: profile without energy rates")
	}
	c := &Calculator{
		profile:    profile,
		tolerance:  DefaultOverageTolerance,
		multiplier: DefaultOverageMultiplier,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tolerance < 1 {
		return nil, fmt.Errorf("billing: overage tolerance %v below 1", c.tolerance)
	}
	return c, nil
}

// Profile returns the calculator's modality profile.
func (c *Calculator) Profile() Profile { return c.profile }

// SlotCost is the demand charge of one slot in one month.
type SlotCost struct {
	Slot        string  `json:"slot"`
	Contracted  float64 `json:"contratada_kw"`
	Measured    float64 `json:"medida_kw"`
	BilledKW    float64 `json:"faturada_kw"`
	OverageKW   float64 `json:"ultrapassagem_kw"`
	Cost        float64 `json:"valor"`
	OverageCost float64 `json:"valor_ultrapassagem"`
}

// MonthCost is the recomputed invoice of one month.
type MonthCost struct {
	Installation     string     `json:"instalacao"`
	Month            string     `json:"mes_referencia"`
	Energy           float64    `json:"energia"`
	GenerationCredit float64    `json:"credito_geracao"`
	Demand           float64    `json:"demanda"`
	Overage          float64    `json:"ultrapassagem"`
	Slots            []SlotCost `json:"slots,omitempty"`
	Surcharge        float64    `json:"bandeira_liquida"`
	Reactive         float64    `json:"ere"`
	Base             float64    `json:"base"`
	Taxes            float64    `json:"impostos"`
	Lighting         float64    `json:"iluminacao"`
	IncomeTax        float64    `json:"retencao_ir"`
	LateFee          float64    `json:"juros"`
	Penalty          float64    `json:"multa"`
	Total            float64    `json:"total"`
}

// Statement is the per-month breakdown of a batch.
type Statement struct {
	Modality tariff.Modality `json:"modalidade"`
	TaxRates TaxRates        `json:"aliquotas"`
	Months   []MonthCost     `json:"meses"`
	Total    float64         `json:"total"`
}

// Cost returns the batch total. Any failing invoice fails the whole cost.
func (c *Calculator) Cost(records []invoice.Record, rates tariff.RateSet, ereRate float64, demand *DemandConfig) (float64, error) {
	stmt, err := c.Breakdown(records, rates, ereRate, demand)
	if err != nil {
		return 0, err
	}
	return stmt.Total, nil
}

// Breakdown bills every invoice of the batch. Invoices that fail, including
// those whose own tax rates leave no gross-up divisor, are left out of the
// statement and reported in the returned error, which joins one
// *InvoiceError per failure. Rates are averaged over the remaining invoices.
func (c *Calculator) Breakdown(records []invoice.Record, rates tariff.RateSet, ereRate float64, demand *DemandConfig) (Statement, error) {
	if len(records) == 0 {
		return Statement{}, ErrNoRecords
	}
	if demand != nil && (demand.Peak < 0 || demand.OffPeak < 0) {
		return Statement{}, fmt.Errorf("%w: %+v", ErrInvalidDemand, *demand)
	}

	var errs []error
	valid := make([]invoice.Record, 0, len(records))
	for _, rec := range records {
		if err := c.checkTaxes(rec); err != nil {
			errs = append(errs, invoiceError(rec, err))
			continue
		}
		valid = append(valid, rec)
	}
	stmt := Statement{Modality: c.profile.Modality}
	if len(valid) == 0 {
		return stmt, errors.Join(errs...)
	}

	taxes := AverageTaxRates(valid)
	denominator := taxes.Denominator(c.includeICMS)
	if denominator <= 0 {
		return Statement{}, fmt.Errorf("%w: pis=%v cofins=%v icms=%v", ErrInvalidTaxRates, taxes.PIS, taxes.COFINS, taxes.ICMS)
	}
	stmt.TaxRates = taxes
	for _, rec := range valid {
		month, err := c.month(rec, rates, ereRate, demand, denominator)
		if err != nil {
			errs = append(errs, invoiceError(rec, err))
			continue
		}
		stmt.Months = append(stmt.Months, month)
		stmt.Total += month.Total
	}
	return stmt, errors.Join(errs...)
}

// Check bills a single invoice without the tax gross-up and reports why it
// cannot be billed, if it cannot. The invoice's own tax rates must leave a
// positive divisor.
func (c *Calculator) Check(rec invoice.Record, rates tariff.RateSet, demand *DemandConfig) error {
	if err := c.checkTaxes(rec); err != nil {
		return invoiceError(rec, err)
	}
	if _, err := c.month(rec, rates, 0, demand, 1); err != nil {
		return invoiceError(rec, err)
	}
	return nil
}

func (c *Calculator) checkTaxes(rec invoice.Record) error {
	taxes := InvoiceTaxRates(rec)
	if taxes.Denominator(c.includeICMS) <= 0 {
		return fmt.Errorf("%w: pis=%v cofins=%v icms=%v", ErrInvalidTaxRates, taxes.PIS, taxes.COFINS, taxes.ICMS)
	}
	return nil
}

func invoiceError(rec invoice.Record, err error) *InvoiceError {
	return &InvoiceError{Installation: rec.InstallationID(), Month: rec.ReferenceMonth(), Err: err}
}

func (c *Calculator) month(rec invoice.Record, rates tariff.RateSet, ereRate float64, demand *DemandConfig, denominator float64) (MonthCost, error) {
	m := MonthCost{Installation: rec.InstallationID(), Month: rec.ReferenceMonth()}

	offPeakRate, err := rates.Sum(c.profile.OffPeakEnergy...)
	if err != nil {
		return m, err
	}
	peakRate, err := rates.Sum(c.profile.PeakEnergy...)
	if err != nil {
		return m, err
	}

	cons := rec.Consumption
	if cons.PeakKWh == nil && cons.OffPeakKWh == nil && cons.TotalKWh == nil {
		return m, ErrMissingConsumption
	}
	offPeak := invoice.Value(cons.OffPeakKWh, 0)
	peak := invoice.Value(cons.PeakKWh, 0)
	if cons.PeakKWh == nil && cons.OffPeakKWh == nil {
		offPeak = *cons.TotalKWh
	}
	m.Energy = offPeak*offPeakRate + peak*peakRate
	if cons.IntermediateKWh != nil {
		interRate := offPeakRate
		if len(c.profile.IntermediateEnergy) > 0 && rates.Has(c.profile.IntermediateEnergy[0]) {
			if interRate, err = rates.Sum(c.profile.IntermediateEnergy...); err != nil {
				return m, err
			}
		}
		m.Energy += *cons.IntermediateKWh * interRate
	}
	if injected := cons.InjectedKWh; injected > 0 {
		m.GenerationCredit = math.Min(injected, offPeak) * offPeakRate
	}

	for _, slot := range c.profile.DemandSlots {
		sc, err := c.slotCost(rec, slot, rates, demand)
		if err != nil {
			return m, err
		}
		m.Slots = append(m.Slots, sc)
		m.Demand += sc.Cost
		m.Overage += sc.OverageCost
	}

	m.Reactive = ereRate * rec.ExcessReactiveKWh()
	m.Surcharge = rec.ComponentsTotal(termsFlag...) - rec.ComponentsWithheld(termsFlag...)
	m.Base = m.Energy + m.Demand + m.Overage + m.Surcharge - m.GenerationCredit + m.Reactive

	grossed := m.Base / denominator
	m.Taxes = grossed - m.Base
	m.Lighting = rec.ComponentsTotal(termsLighting...)
	m.IncomeTax = incomeTaxWithheld(rec)
	m.LateFee = rec.ComponentsTotal(termsLateFee...)
	m.Penalty = rec.ComponentsTotal(termsPenalty...)
	m.Total = grossed + m.Lighting + m.IncomeTax + m.LateFee + m.Penalty
	return m, nil
}

// slotCost bills contracted demand, or the measured value plus the excess at
// the overage multiplier once measured/contracted exceeds the tolerance.
func (c *Calculator) slotCost(rec invoice.Record, slot DemandSlot, rates tariff.RateSet, demand *DemandConfig) (SlotCost, error) {
	rate, err := rates.Rate(slot.RateKey)
	if err != nil {
		return SlotCost{}, err
	}
	var contracted float64
	if demand != nil {
		contracted = demand.value(slot.Contracted)
	} else {
		v, ok := rec.Demand.Contracted(slot.Contracted)
		if !ok {
			return SlotCost{}, fmt.Errorf("%w: %s", ErrMissingContracted, slot.Name)
		}
		contracted = v
	}
	measured := measuredDemand(rec, slot)

	sc := SlotCost{Slot: slot.Name, Contracted: contracted, Measured: measured, BilledKW: contracted}
	if c.exceeds(measured, contracted) {
		sc.BilledKW = measured
		sc.OverageKW = measured - contracted
	}
	sc.Cost = sc.BilledKW * rate
	sc.OverageCost = sc.OverageKW * rate * c.multiplier
	return sc, nil
}

func (c *Calculator) exceeds(measured, contracted float64) bool {
	if measured <= contracted {
		return false
	}
	if contracted <= 0 {
		return true
	}
	return measured/contracted > c.tolerance
}

// measuredDemand is the largest reading across the slot's periods under the
// record's demand-source policy; an absent reading counts as zero.
func measuredDemand(rec invoice.Record, slot DemandSlot) float64 {
	var measured float64
	for _, period := range slot.Periods {
		if v, ok := rec.MeasuredDemand(period); ok && v > measured {
			measured = v
		}
	}
	return measured
}

// incomeTaxWithheld prefers the printed withheld column and falls back to
// the line total.
func incomeTaxWithheld(rec invoice.Record) float64 {
	var sum float64
	for _, comp := range rec.ExtraComponents {
		if !matchesAny(comp.Description, termsIncomeTax) {
			continue
		}
		if comp.Withheld != nil {
			sum += *comp.Withheld
			continue
		}
		sum += invoice.Value(comp.Total, 0)
	}
	return sum
}

func matchesAny(description string, terms []string) bool {
	for _, term := range terms {
		if ptbr.ContainsFold(description, term) {
			return true
		}
	}
	return false
}

// Breakpoints lists, per demand slot, the contracted values where the cost
// changes slope or jumps: each measured reading m and m/tolerance.
func (c *Calculator) Breakpoints(records []invoice.Record) [][]float64 {
	out := make([][]float64, len(c.profile.DemandSlots))
	for i, slot := range c.profile.DemandSlots {
		seen := map[float64]bool{}
		for _, rec := range records {
			m := measuredDemand(rec, slot)
			if m <= 0 {
				continue
			}
			for _, v := range []float64{m, m / c.tolerance} {
				if !seen[v] {
					seen[v] = true
					out[i] = append(out[i], v)
				}
			}
		}
		sort.Float64s(out[i])
	}
	return out
}
