package optimization

import (
	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	tariff "tariff-advisor/internal/tariff/domain"
)

// Curve samples the green cost over contracted demand.
type Curve struct {
	Demands []float64 `json:"demanda_range"`
	Costs   []float64 `json:"custos_verde"`
}

// Surface samples the blue cost; Costs[j][i] is at (Peak[i], OffPeak[j]).
type Surface struct {
	Peak    []float64   `json:"x"`
	OffPeak []float64   `json:"y"`
	Costs   [][]float64 `json:"z"`
}

// CurvePoints is the number of samples per axis.
const CurvePoints = 50

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// GreenCurve samples the green cost on 50 points from 100 kW to the upper bound.
func (o *Optimizer) GreenCurve(records []invoice.Record, rates tariff.RateSet, ereRate float64) (Curve, error) {
	calc, err := o.calculator(billing.Green)
	if err != nil {
		return Curve{}, err
	}
	curve := Curve{Demands: Linspace(DefaultSeedKW, o.upper, CurvePoints)}
	curve.Costs = make([]float64, len(curve.Demands))
	for i, kw := range curve.Demands {
		if curve.Costs[i], err = calc.Cost(records, rates, ereRate, billing.GreenDemand(kw)); err != nil {
			return Curve{}, err
		}
	}
	return curve, nil
}

// BlueSurface samples the blue cost on a 50x50 grid over the search bounds.
func (o *Optimizer) BlueSurface(records []invoice.Record, rates tariff.RateSet, ereRate float64) (Surface, error) {
	calc, err := o.calculator(billing.Blue)
	if err != nil {
		return Surface{}, err
	}
	s := Surface{
		Peak:    Linspace(o.lower, o.upper, CurvePoints),
		OffPeak: Linspace(o.lower, o.upper, CurvePoints),
	}
	s.Costs = make([][]float64, len(s.OffPeak))
	for j, fp := range s.OffPeak {
		s.Costs[j] = make([]float64, len(s.Peak))
		for i, p := range s.Peak {
			if s.Costs[j][i], err = calc.Cost(records, rates, ereRate, billing.BlueDemand(p, fp)); err != nil {
				return Surface{}, err
			}
		}
	}
	return s, nil
}
