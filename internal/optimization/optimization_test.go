package optimization

import (
	"errors"
	"math"
	"testing"
	"time"

	invoice "tariff-advisor/internal/invoice/domain"
	tariff "tariff-advisor/internal/tariff/domain"
)

func TestMinimizeBoundedQuadratic(t *testing.T) {
	res, err := MinimizeBounded(func(x float64) (float64, error) {
		return (x - 2) * (x - 2), nil
	}, -10, 10, 1e-5, 500)
	if err != nil {
		t.Fatalf("minimize: %v", err)
	}
	if math.Abs(res.X-2) > 1e-4 {
		t.Fatalf("expected x=2, got %v", res.X)
	}
}

func TestMinimizeBoundedEdgeMinimum(t *testing.T) {
	res, err := MinimizeBounded(func(x float64) (float64, error) { return x, nil }, 30, 1000, 1e-5, 500)
	if err != nil {
		t.Fatalf("minimize: %v", err)
	}
	if res.X < 30 || res.X > 30.001 {
		t.Fatalf("expected lower bound, got %v", res.X)
	}
}

func TestMinimizeBoundedBudget(t *testing.T) {
	_, err := MinimizeBounded(func(x float64) (float64, error) { return math.Sin(x), nil }, 0, 10, 1e-12, 3)
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("expected not converged, got %v", err)
	}
	if _, err := MinimizeBounded(func(x float64) (float64, error) { return x, nil }, 5, 1, 1e-5, 10); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected invalid bounds, got %v", err)
	}
}

func TestMinimizeBoundedPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := MinimizeBounded(func(float64) (float64, error) { return 0, boom }, 0, 1, 1e-5, 10)
	if !errors.Is(err, boom) {
		t.Fatalf("expected objective error, got %v", err)
	}
}

func TestPowellBoundedQuadratic(t *testing.T) {
	f := func(x []float64) (float64, error) {
		return (x[0]-3)*(x[0]-3) + 2*(x[1]+1)*(x[1]+1) + 0.5*x[0]*x[1], nil
	}
	res, err := MinimizePowellBounded(f, []float64{0, 0}, []float64{-10, -10}, []float64{10, 10}, PowellConfig{})
	if err != nil {
		t.Fatalf("powell: %v", err)
	}
	// stationary point of the quadratic
	wantX, wantY := 3.3548387096774195, -1.4193548387096775
	if math.Abs(res.X[0]-wantX) > 5e-2 || math.Abs(res.X[1]-wantY) > 5e-2 {
		t.Fatalf("unexpected minimum %v", res.X)
	}
}

func TestPowellRespectsBounds(t *testing.T) {
	f := func(x []float64) (float64, error) { return x[0] + x[1], nil }
	res, err := MinimizePowellBounded(f, []float64{100, 100}, []float64{30, 30}, []float64{1000, 1000}, PowellConfig{})
	if err != nil {
		t.Fatalf("powell: %v", err)
	}
	for i, v := range res.X {
		if v < 30 || v > 1000 {
			t.Fatalf("coordinate %d out of bounds: %v", i, v)
		}
		if v > 30.01 {
			t.Fatalf("expected lower corner, got %v", res.X)
		}
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(100, 1000, 50)
	if len(got) != 50 || got[0] != 100 || got[49] != 1000 {
		t.Fatalf("unexpected linspace ends %v %v", got[0], got[len(got)-1])
	}
	if math.Abs(got[1]-(100+900.0/49)) > 1e-9 {
		t.Fatalf("unexpected step %v", got[1])
	}
}

func record(month string, peakMax, offPeakMax float64) invoice.Record {
	return invoice.Record{
		Identification: &invoice.Identification{
			InstallationNumber: invoice.String("0160012345"),
			ReferenceMonth:     invoice.String(month),
		},
		Consumption: invoice.Consumption{PeakKWh: invoice.Float(1000), OffPeakKWh: invoice.Float(5000)},
		Demand: &invoice.Demand{Maxima: []invoice.PeriodValue{
			{Period: invoice.PeriodPeak, KW: peakMax},
			{Period: invoice.PeriodOffPeak, KW: offPeakMax},
		}},
		Taxes: []invoice.Tax{
			{Name: invoice.TaxPIS, Rate: invoice.Float(1.65)},
			{Name: invoice.TaxCOFINS, Rate: invoice.Float(7.6)},
		},
	}
}

func greenRates() tariff.RateSet {
	return tariff.NewRateSet(tariff.ModalityGreen, map[tariff.RateKey]float64{
		tariff.TEOffPeak:     0.3,
		tariff.TUSDOffPeak:   0.1,
		tariff.TEPeak:        0.5,
		tariff.TUSDPeak:      1.5,
		tariff.DemandOffPeak: 25,
	})
}

func blueRates() tariff.RateSet {
	return tariff.NewRateSet(tariff.ModalityBlue, map[tariff.RateKey]float64{
		tariff.TEOffPeak:     0.3,
		tariff.TUSDOffPeak:   0.1,
		tariff.TEPeak:        0.5,
		tariff.TUSDPeak:      0.2,
		tariff.DemandPeak:    60,
		tariff.DemandOffPeak: 20,
	})
}

type runRecorder struct {
	modality, outcome string
	runs              int
}

func (r *runRecorder) ObserveRun(modality, outcome string, _ time.Duration) {
	r.modality, r.outcome = modality, outcome
	r.runs++
}

func TestOptimizeGreenSingleInvoice(t *testing.T) {
	rec := &runRecorder{}
	opt, err := NewOptimizer(WithObserver(rec))
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	res, err := opt.OptimizeGreen([]invoice.Record{record("01/2025", 300, 560)}, greenRates(), 0)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.DemandaOtima != 533 {
		t.Fatalf("expected 533 kW, got %d (%v)", res.DemandaOtima, res.DemandaOtimaExata)
	}
	if res.DemandaOtimaExata < DefaultLowerKW || res.DemandaOtimaExata > DefaultUpperKW {
		t.Fatalf("optimum out of bounds: %v", res.DemandaOtimaExata)
	}
	energy := 5000*0.4 + 1000*2.0
	want := (energy + res.DemandaOtimaExata*25) / (1 - 0.0925)
	if math.Abs(res.CustoOtimo-want) > 1e-6 {
		t.Fatalf("expected cost %v, got %v", want, res.CustoOtimo)
	}
	if rec.runs != 1 || rec.modality != "verde" || rec.outcome != "ok" {
		t.Fatalf("unexpected observation %+v", rec)
	}
}

func TestOptimizeGreenIsDeterministic(t *testing.T) {
	opt, _ := NewOptimizer()
	records := []invoice.Record{
		record("01/2025", 300, 560),
		record("02/2025", 310, 610),
		record("03/2025", 290, 480),
	}
	first, err := opt.OptimizeGreen(records, greenRates(), 0)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	second, _ := opt.OptimizeGreen(records, greenRates(), 0)
	if first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
	curve, err := opt.GreenCurve(records, greenRates(), 0)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	for i, c := range curve.Costs {
		if c < first.CustoOtimo-1e-6 {
			t.Fatalf("curve point %v cheaper than optimum: %v < %v", curve.Demands[i], c, first.CustoOtimo)
		}
	}
}

func TestOptimizeBlue(t *testing.T) {
	opt, _ := NewOptimizer()
	records := []invoice.Record{record("01/2025", 210, 420), record("02/2025", 200, 400)}
	res, err := opt.OptimizeBlue(records, blueRates(), 0)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.DemandaPOtima != 200 || res.DemandaFPOtima != 400 {
		t.Fatalf("expected (200, 400), got (%d, %d) exact (%v, %v)",
			res.DemandaPOtima, res.DemandaFPOtima, res.DemandaPOtimaExata, res.DemandaFPOtimaExata)
	}
	surface, err := opt.BlueSurface(records, blueRates(), 0)
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	if len(surface.Costs) != CurvePoints || len(surface.Costs[0]) != CurvePoints {
		t.Fatalf("unexpected surface size")
	}
	for _, row := range surface.Costs {
		for _, c := range row {
			if c < res.CustoOtimo-1e-6 {
				t.Fatalf("grid point cheaper than optimum: %v < %v", c, res.CustoOtimo)
			}
		}
	}
}

func TestOptimizeReportsBillingErrors(t *testing.T) {
	rec := &runRecorder{}
	opt, _ := NewOptimizer(WithObserver(rec))
	rates := tariff.NewRateSet(tariff.ModalityGreen, map[tariff.RateKey]float64{tariff.TEOffPeak: 1})
	if _, err := opt.OptimizeGreen([]invoice.Record{record("01/2025", 1, 1)}, rates, 0); !errors.Is(err, tariff.ErrMissingRate) {
		t.Fatalf("expected missing rate, got %v", err)
	}
	if rec.outcome != "error" {
		t.Fatalf("expected error outcome, got %q", rec.outcome)
	}
}

func TestNewOptimizerValidatesBounds(t *testing.T) {
	if _, err := NewOptimizer(WithBounds(100, 50)); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected invalid bounds, got %v", err)
	}
}
