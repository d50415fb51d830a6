package optimization

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"time"

	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	tariff "tariff-advisor/internal/tariff/domain"
)

const (
	DefaultLowerKW = 30
	DefaultUpperKW = 1000
	DefaultSeedKW  = 100

	brentXTol     = 1e-5
	brentMaxEvals = 500
)

// RunObserver receives one call per optimization run.
type RunObserver interface {
	ObserveRun(modality string, outcome string, elapsed time.Duration)
}

// GreenResult is the best single contracted demand.
type GreenResult struct {
	DemandaOtima      int     `json:"demanda_otima"`
	DemandaOtimaExata float64 `json:"demanda_otima_exata"`
	CustoOtimo        float64 `json:"custo_otimo"`
	Evaluations       int     `json:"avaliacoes"`
}

// BlueResult is the best pair of peak and off-peak contracted demands.
type BlueResult struct {
	DemandaPOtima       int     `json:"demanda_p_otima"`
	DemandaFPOtima      int     `json:"demanda_fp_otima"`
	DemandaPOtimaExata  float64 `json:"demanda_p_otima_exata"`
	DemandaFPOtimaExata float64 `json:"demanda_fp_otima_exata"`
	CustoOtimo          float64 `json:"custo_otimo"`
	Evaluations         int     `json:"avaliacoes"`
}

// Optimizer searches contracted demand values that minimise the batch cost.
type Optimizer struct {
	lower, upper float64
	seed         [2]float64
	calcOpts     []billing.Option
	logger       *log.Logger
	observer     RunObserver
}

// Option configures the optimizer.
type Option func(*Optimizer)

// WithBounds sets the contracted demand search interval in kW.
func WithBounds(lower, upper float64) Option {
	return func(o *Optimizer) {
		o.lower, o.upper = lower, upper
	}
}

// WithBlueSeed sets the Powell starting point (peak, off-peak).
func WithBlueSeed(peak, offPeak float64) Option {
	return func(o *Optimizer) {
		o.seed = [2]float64{peak, offPeak}
	}
}

// WithCalculatorOptions forwards options to every calculator the optimizer builds.
func WithCalculatorOptions(opts ...billing.Option) Option {
	return func(o *Optimizer) {
		o.calcOpts = append(o.calcOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver reports each run to observer.
func WithObserver(observer RunObserver) Option {
	return func(o *Optimizer) {
		o.observer = observer
	}
}

// NewOptimizer constructs an optimizer.
func NewOptimizer(opts ...Option) (*Optimizer, error) {
	o := &Optimizer{
		lower:  DefaultLowerKW,
		upper:  DefaultUpperKW,
		seed:   [2]float64{DefaultSeedKW, DefaultSeedKW},
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	if !(o.lower > 0 && o.lower < o.upper) {
		return nil, fmt.Errorf("%w: [%v, %v]", ErrInvalidBounds, o.lower, o.upper)
	}
	if _, err := billing.NewCalculator(billing.Green, o.calcOpts...); err != nil {
		return nil, err
	}
	return o, nil
}

// Bounds returns the search interval.
func (o *Optimizer) Bounds() (float64, float64) { return o.lower, o.upper }

func (o *Optimizer) calculator(profile billing.Profile) (*billing.Calculator, error) {
	return billing.NewCalculator(profile, o.calcOpts...)
}

// OptimizeGreen finds the single contracted demand with the lowest green
// cost. A bounded Brent search is followed by a pass over the cost
// breakpoints, where the piecewise cost attains its minima.
func (o *Optimizer) OptimizeGreen(records []invoice.Record, rates tariff.RateSet, ereRate float64) (res GreenResult, err error) {
	start := time.Now()
	defer func() { o.observe(string(tariff.ModalityGreen), err, start) }()

	calc, err := o.calculator(billing.Green)
	if err != nil {
		return GreenResult{}, err
	}
	evals := 0
	cost := func(kw float64) (float64, error) {
		evals++
		return calc.Cost(records, rates, ereRate, billing.GreenDemand(kw))
	}

	best, err := MinimizeBounded(cost, o.lower, o.upper, brentXTol, brentMaxEvals)
	if err != nil {
		return GreenResult{}, fmt.Errorf("optimization: green: %w", err)
	}
	var points []float64
	for _, slot := range calc.Breakpoints(records) {
		points = append(points, slot...)
	}
	x, f, err := o.polish(cost, best.X, best.F, points)
	if err != nil {
		return GreenResult{}, err
	}
	o.logger.Printf("optimization green done: demand=%.3f cost=%.2f evals=%d", x, f, evals)
	return GreenResult{
		DemandaOtima:      int(math.Round(x)),
		DemandaOtimaExata: x,
		CustoOtimo:        f,
		Evaluations:       evals,
	}, nil
}

// OptimizeBlue finds the peak and off-peak contracted demands with the
// lowest blue cost using bounded Powell from the configured seed, then
// polishes each coordinate over its breakpoints.
func (o *Optimizer) OptimizeBlue(records []invoice.Record, rates tariff.RateSet, ereRate float64) (res BlueResult, err error) {
	start := time.Now()
	defer func() { o.observe(string(tariff.ModalityBlue), err, start) }()

	calc, err := o.calculator(billing.Blue)
	if err != nil {
		return BlueResult{}, err
	}
	evals := 0
	cost := func(x []float64) (float64, error) {
		evals++
		return calc.Cost(records, rates, ereRate, billing.BlueDemand(x[0], x[1]))
	}

	lower := []float64{o.lower, o.lower}
	upper := []float64{o.upper, o.upper}
	best, err := MinimizePowellBounded(cost, o.seed[:], lower, upper, PowellConfig{})
	if err != nil {
		return BlueResult{}, fmt.Errorf("optimization: blue: %w", err)
	}

	x, f := clone(best.X), best.F
	breakpoints := calc.Breakpoints(records)
	// Slots are billed independently, so a few coordinate passes settle.
	for pass := 0; pass < 3; pass++ {
		improved := false
		for i := range x {
			i := i
			along := func(v float64) (float64, error) {
				y := clone(x)
				y[i] = v
				return cost(y)
			}
			var points []float64
			if i < len(breakpoints) {
				points = breakpoints[i]
			}
			v, fv, err := o.polish(along, x[i], f, points)
			if err != nil {
				return BlueResult{}, err
			}
			if fv < f {
				x[i], f = v, fv
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	o.logger.Printf("optimization blue done: peak=%.3f off_peak=%.3f cost=%.2f evals=%d", x[0], x[1], f, evals)
	return BlueResult{
		DemandaPOtima:       int(math.Round(x[0])),
		DemandaFPOtima:      int(math.Round(x[1])),
		DemandaPOtimaExata:  x[0],
		DemandaFPOtimaExata: x[1],
		CustoOtimo:          f,
		Evaluations:         evals,
	}, nil
}

// polish evaluates the bounds, each in-range breakpoint and the float just
// above it, keeping the incumbent unless a candidate is strictly cheaper.
func (o *Optimizer) polish(f Objective, x, fx float64, points []float64) (float64, float64, error) {
	candidates := []float64{o.lower, o.upper}
	for _, p := range points {
		candidates = append(candidates, p, math.Nextafter(p, math.Inf(1)))
	}
	sort.Float64s(candidates)
	for _, c := range candidates {
		if c < o.lower || c > o.upper {
			continue
		}
		fc, err := f(c)
		if err != nil {
			return 0, 0, err
		}
		if fc < fx {
			x, fx = c, fc
		}
	}
	return x, fx, nil
}

func (o *Optimizer) observe(modality string, err error, start time.Time) {
	if o.observer == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotConverged):
		outcome = "not_converged"
	case err != nil:
		outcome = "error"
	}
	o.observer.ObserveRun(modality, outcome, time.Since(start))
}
