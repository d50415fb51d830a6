package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/invoice/extraction"
	"tariff-advisor/internal/invoice/infrastructure/pdftext"
	"tariff-advisor/internal/observability/metrics"
	"tariff-advisor/internal/optimization"
	"tariff-advisor/internal/ptbr"
	"tariff-advisor/internal/reporting"
	tariff "tariff-advisor/internal/tariff/domain"
)

var (
	// ErrEmptyRequest is returned when a request names no invoices.
	ErrEmptyRequest = errors.New("analysis: no invoices requested")
	// ErrNoBillableInvoices is returned when every invoice failed.
	ErrNoBillableInvoices = errors.New("analysis: no billable invoices")
	// ErrArchiveUnavailable is returned for archive requests without an archive.
	ErrArchiveUnavailable = errors.New("analysis: invoice archive not configured")
	// ErrPathOutsideArchive is returned for pdf_paths that escape the archive root.
	ErrPathOutsideArchive = errors.New("analysis: pdf path outside archive root")
)

// Failure stages.
const (
	StageRead    = "leitura"
	StageBilling = "faturamento"
)

// TextReader turns an invoice PDF into text.
type TextReader interface {
	ReadFile(path string) (string, error)
}

// InvoiceArchive lists archived invoice PDFs of an installation.
type InvoiceArchive interface {
	List(installation string, from, to time.Time) ([]pdftext.Document, error)
}

// RateLookup resolves the rate sets of a period and distributor.
type RateLookup interface {
	Lookup(q tariff.Query) (tariff.RateSets, error)
}

// Request selects the invoices of an analysis: raw texts, PDF paths, or an
// installation and a month range in the archive.
type Request struct {
	Texts        []string `json:"textos,omitempty"`
	PDFPaths     []string `json:"pdf_paths,omitempty"`
	Installation string   `json:"codInstalacao,omitempty"`
	From         string   `json:"data_inicio,omitempty"`
	To           string   `json:"data_fim,omitempty"`
	Period       string   `json:"periodo"`
	Distributor  string   `json:"distribuidora,omitempty"`
}

// Failure reports one invoice left out of the analysis.
type Failure struct {
	Source       string `json:"origem"`
	Installation string `json:"instalacao,omitempty"`
	Month        string `json:"mes_referencia,omitempty"`
	Stage        string `json:"etapa"`
	Error        string `json:"erro"`
}

// Result is a complete analysis.
type Result struct {
	Records      []invoice.Record          `json:"faturas"`
	Failures     []Failure                 `json:"falhas,omitempty"`
	Rates        tariff.RateSets           `json:"tarifas"`
	UpdatedRates tariff.RateSets           `json:"tarifas_atualizadas"`
	Current      billing.Statement         `json:"faturamento_atual"`
	Green        optimization.GreenResult  `json:"result_verde"`
	Blue         optimization.BlueResult   `json:"result_azul"`
	GreenCurve   *optimization.Curve       `json:"curva_verde,omitempty"`
	BlueSurface  *optimization.Surface     `json:"superficie_azul,omitempty"`
	Tables       reporting.Tables          `json:"analise_eficiencia"`
}

// Service runs invoice analyses.
type Service struct {
	cfg       Config
	extractor *extraction.Extractor
	reader    TextReader
	archive   InvoiceArchive
	rates     RateLookup
	logger    *log.Logger
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithArchive enables installation + range requests.
func WithArchive(archive InvoiceArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the analysis service.
func NewService(cfg Config, extractor *extraction.Extractor, reader TextReader, rates RateLookup, opts ...Option) (*Service, error) {
	if extractor == nil {
		return nil, errors.New("analysis: nil extractor")
	}
	if reader == nil {
		return nil, errors.New("analysis: nil text reader")
	}
	if rates == nil {
		return nil, errors.New("analysis: nil rate lookup")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:       cfg,
		extractor: extractor,
		reader:    reader,
		rates:     rates,
		logger:    log.New(io.Discard, "", 0),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Extractor returns the service's extractor.
func (s *Service) Extractor() *extraction.Extractor { return s.extractor }

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

type source struct {
	name string
	text string
	path string
}

// ExtractAll reads and extracts every invoice of the request concurrently.
// Unreadable PDFs are reported as failures; the records come back ordered
// by reference month.
func (s *Service) ExtractAll(ctx context.Context, req Request) ([]invoice.Record, []Failure, error) {
	sources, err := s.sources(req)
	if err != nil {
		return nil, nil, err
	}
	records := make([]*invoice.Record, len(sources))
	failures := make([]*Failure, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			text := src.text
			if src.path != "" {
				read, err := s.reader.ReadFile(src.path)
				if err != nil {
					s.logger.Printf("analysis read failed: source=%s err=%v", src.name, err)
					metrics.ObserveExtraction(metrics.ResultError, time.Since(start))
					failures[i] = &Failure{Source: src.name, Stage: StageRead, Error: err.Error()}
					return nil
				}
				text = read
			}
			rec := s.extractor.Extract(text)
			metrics.ObserveExtraction(metrics.ResultSuccess, time.Since(start))
			records[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []invoice.Record
	var fails []Failure
	for i := range sources {
		if records[i] != nil {
			out = append(out, *records[i])
		}
		if failures[i] != nil {
			fails = append(fails, *failures[i])
		}
	}
	SortByMonth(out)
	return out, fails, nil
}

func (s *Service) sources(req Request) ([]source, error) {
	var out []source
	for i, text := range req.Texts {
		out = append(out, source{name: fmt.Sprintf("texto[%d]", i), text: text})
	}
	for _, path := range req.PDFPaths {
		resolved, err := s.archivePath(path)
		if err != nil {
			return nil, err
		}
		out = append(out, source{name: path, path: resolved})
	}
	if req.Installation != "" {
		if s.archive == nil {
			return nil, ErrArchiveUnavailable
		}
		from, err := ptbr.ParsePeriod(req.From)
		if err != nil {
			return nil, fmt.Errorf("analysis: data_inicio: %w", err)
		}
		to, err := ptbr.ParsePeriod(req.To)
		if err != nil {
			return nil, fmt.Errorf("analysis: data_fim: %w", err)
		}
		docs, err := s.archive.List(req.Installation, from, to)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			out = append(out, source{name: doc.Path, path: doc.Path})
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyRequest
	}
	return out, nil
}

// archivePath resolves a requested PDF path against the archive root.
// Relative paths are taken from the root; nothing may resolve outside it.
func (s *Service) archivePath(path string) (string, error) {
	if s.cfg.ArchiveRoot == "" {
		return "", ErrArchiveUnavailable
	}
	root, err := filepath.Abs(s.cfg.ArchiveRoot)
	if err != nil {
		return "", fmt.Errorf("analysis: archive root: %w", err)
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideArchive, path)
	}
	return target, nil
}

// SortByMonth orders records by reference month; records without a
// parsable month keep their relative order at the end.
func SortByMonth(records []invoice.Record) {
	key := func(rec invoice.Record) (time.Time, bool) {
		t, err := ptbr.ParseReferenceMonth(rec.ReferenceMonth())
		return t, err == nil
	}
	sort.SliceStable(records, func(i, j int) bool {
		ti, oki := key(records[i])
		tj, okj := key(records[j])
		if oki != okj {
			return oki
		}
		return oki && ti.Before(tj)
	})
}

// LookupRates resolves the rate sets of a period for a distributor,
// converted to R$/kWh.
func (s *Service) LookupRates(period, distributor string) (tariff.RateSets, error) {
	if distributor == "" {
		distributor = s.cfg.DefaultDistributor
	}
	return s.rates.Lookup(tariff.Query{
		Period:      strings.ToUpper(strings.TrimSpace(period)),
		Distributor: distributor,
		Detail:      s.cfg.RateDetail,
	})
}

func (s *Service) calculatorOptions(t Tuning) []billing.Option {
	return []billing.Option{
		billing.WithOverageTolerance(t.OverageTolerance),
		billing.WithOverageMultiplier(t.OverageMultiplier),
		billing.WithICMSInDenominator(s.cfg.ICMSInDenominator),
	}
}

// Optimizer builds the optimizer for a distributor's tuning.
func (s *Service) Optimizer(distributor string) (*optimization.Optimizer, error) {
	t := s.cfg.TuningFor(s.distributor(distributor))
	return optimization.NewOptimizer(
		optimization.WithBounds(t.LowerKW, t.UpperKW),
		optimization.WithBlueSeed(t.BlueSeedPeakKW, t.BlueSeedOffPeakKW),
		optimization.WithCalculatorOptions(s.calculatorOptions(t)...),
		optimization.WithLogger(s.logger),
		optimization.WithObserver(metrics.RunObserver{}),
	)
}

// Calculator builds the calculator of a modality for a distributor's tuning.
func (s *Service) Calculator(modality tariff.Modality, distributor string) (*billing.Calculator, error) {
	profile, err := billing.ProfileFor(modality)
	if err != nil {
		return nil, err
	}
	t := s.cfg.TuningFor(s.distributor(distributor))
	return billing.NewCalculator(profile, s.calculatorOptions(t)...)
}

func (s *Service) distributor(d string) string {
	if d == "" {
		return s.cfg.DefaultDistributor
	}
	return d
}

// Analyze extracts the requested invoices, optimizes the green and blue
// contracts on the updated period's rates and builds the report tables.
func (s *Service) Analyze(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveAnalysis(result, time.Since(start))
	}()

	distributor := s.distributor(req.Distributor)
	tuning := s.cfg.TuningFor(distributor)
	if req.Period == "" {
		req.Period = tuning.UpdatedPeriod
	}

	records, failures, err := s.ExtractAll(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res.Failures = failures

	if res.Rates, err = s.LookupRates(req.Period, distributor); err != nil {
		return Result{}, fmt.Errorf("analysis: rates %s: %w", req.Period, err)
	}
	if res.UpdatedRates, err = s.LookupRates(tuning.UpdatedPeriod, distributor); err != nil {
		return Result{}, fmt.Errorf("analysis: rates %s: %w", tuning.UpdatedPeriod, err)
	}
	green, err := res.UpdatedRates.Set(tariff.ModalityGreen)
	if err != nil {
		return Result{}, err
	}
	blue, err := res.UpdatedRates.Set(tariff.ModalityBlue)
	if err != nil {
		return Result{}, err
	}
	ere := s.ERERate(res.UpdatedRates)

	greenCalc, err := s.Calculator(tariff.ModalityGreen, distributor)
	if err != nil {
		return Result{}, err
	}
	blueCalc, err := s.Calculator(tariff.ModalityBlue, distributor)
	if err != nil {
		return Result{}, err
	}

	// Screen at the lower bound so every invoice that reaches the optimizer
	// bills under both demand modalities.
	floor := billing.BlueDemand(tuning.LowerKW, tuning.LowerKW)
	for _, rec := range records {
		checkErr := greenCalc.Check(rec, green, floor)
		if checkErr == nil {
			checkErr = blueCalc.Check(rec, blue, floor)
		}
		if checkErr != nil {
			metrics.IncBillingFailure(failureReason(checkErr))
			s.logger.Printf("analysis billing skipped: invoice=%s err=%v", rec.Label(), checkErr)
			res.Failures = append(res.Failures, Failure{
				Source:       rec.Label(),
				Installation: rec.InstallationID(),
				Month:        rec.ReferenceMonth(),
				Stage:        StageBilling,
				Error:        checkErr.Error(),
			})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	if len(res.Records) == 0 {
		return res, ErrNoBillableInvoices
	}

	if baseGreen, err := res.Rates.Set(tariff.ModalityGreen); err == nil {
		current, err := greenCalc.Breakdown(res.Records, baseGreen, s.ERERate(res.Rates), nil)
		if err != nil {
			s.logger.Printf("analysis current statement partial: period=%s err=%v", req.Period, err)
		}
		res.Current = current
	}

	opt, err := s.Optimizer(distributor)
	if err != nil {
		return Result{}, err
	}
	if res.Green, err = opt.OptimizeGreen(res.Records, green, ere); err != nil {
		return Result{}, err
	}
	if res.Blue, err = opt.OptimizeBlue(res.Records, blue, ere); err != nil {
		return Result{}, err
	}
	if s.cfg.Curves {
		curve, err := opt.GreenCurve(res.Records, green, ere)
		if err != nil {
			return Result{}, err
		}
		surface, err := opt.BlueSurface(res.Records, blue, ere)
		if err != nil {
			return Result{}, err
		}
		res.GreenCurve, res.BlueSurface = &curve, &surface
	}

	if res.Tables, err = s.tables(res, green, ere, tuning, distributor); err != nil {
		return Result{}, err
	}
	s.logger.Printf("analysis done: invoices=%d failures=%d green_kw=%d blue_kw=%d/%d",
		len(res.Records), len(res.Failures), res.Green.DemandaOtima, res.Blue.DemandaPOtima, res.Blue.DemandaFPOtima)
	return res, nil
}

func (s *Service) tables(res Result, green tariff.RateSet, ere float64, tuning Tuning, distributor string) (reporting.Tables, error) {
	calc, err := s.Calculator(tariff.ModalityGreen, distributor)
	if err != nil {
		return reporting.Tables{}, err
	}
	var out reporting.Tables

	// The current contract is billed at each invoice's printed contracted
	// demand. Without it the comparison, proposal and context are skipped.
	cmp, err := reporting.ContractComparison(calc, res.Records, green, ere, res.Green.DemandaOtimaExata)
	if errors.Is(err, billing.ErrMissingContracted) {
		s.logger.Printf("analysis comparison without contracted demand: err=%v", err)
	} else if err != nil {
		return reporting.Tables{}, err
	} else {
		out.Comparison = &cmp
		out.Proposal = reporting.ProposalSummary(cmp)
		ctx, err := reporting.ContextSummary(res.Records, reporting.ContextInput{
			Comparison:    cmp,
			Distributor:   distributor,
			BluePeakKW:    res.Blue.DemandaPOtimaExata,
			BlueOffPeakKW: res.Blue.DemandaFPOtimaExata,
			Now:           s.now(),
		})
		if err != nil {
			return reporting.Tables{}, err
		}
		out.Context = &ctx
	}

	proj, err := reporting.BuildProjection(res.Records, res.UpdatedRates, reporting.ProjectionInput{
		GreenKW:       res.Green.DemandaOtimaExata,
		BluePeakKW:    res.Blue.DemandaPOtimaExata,
		BlueOffPeakKW: res.Blue.DemandaFPOtimaExata,
		EREEnabled:    res.UpdatedRates.ERE != nil,
	}, s.calculatorOptions(tuning)...)
	if errors.Is(err, tariff.ErrModalityNotFound) {
		s.logger.Printf("analysis projection skipped: err=%v", err)
	} else if err != nil {
		return reporting.Tables{}, err
	} else {
		out.Projection = &proj
	}

	adj, err := reporting.BuildAdjustment(calc, res.Records, green, ere, tuning.AdjustmentDemandKW)
	if err != nil {
		return reporting.Tables{}, err
	}
	out.Adjustment = &adj
	return out, nil
}

// ERERate returns the reactive-excess rate of sets, or zero when the table
// carries none.
func (s *Service) ERERate(sets tariff.RateSets) float64 {
	v, err := sets.EREValue()
	if err != nil {
		s.logger.Printf("analysis ere rate missing: period=%s distributor=%s", sets.Period, sets.Distributor)
		return 0
	}
	return v
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, tariff.ErrMissingRate):
		return "missing_rate"
	case errors.Is(err, billing.ErrMissingConsumption):
		return "missing_consumption"
	case errors.Is(err, billing.ErrMissingContracted):
		return "missing_contracted"
	case errors.Is(err, billing.ErrInvalidTaxRates):
		return "invalid_tax_rates"
	}
	return "other"
}
