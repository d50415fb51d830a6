package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	analysis "tariff-advisor/internal/analysis/application"
	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/invoice/extraction"
	tariff "tariff-advisor/internal/tariff/domain"
)

type fakeRates struct{}

func (fakeRates) Lookup(q tariff.Query) (tariff.RateSets, error) {
	if q.Distributor == "Nenhuma" {
		return tariff.RateSets{}, tariff.ErrNoRates
	}
	ere := 0.35
	return tariff.RateSets{
		Period:      q.Period,
		Distributor: q.Distributor,
		ERE:         &ere,
		Sets: map[tariff.Modality]tariff.RateSet{
			tariff.ModalityGreen: tariff.NewRateSet(tariff.ModalityGreen, map[tariff.RateKey]float64{
				tariff.TEOffPeak: 0.3, tariff.TUSDOffPeak: 0.1, tariff.TEPeak: 0.5, tariff.TUSDPeak: 1.5,
				tariff.DemandOffPeak: 25,
			}),
			tariff.ModalityBlue: tariff.NewRateSet(tariff.ModalityBlue, map[tariff.RateKey]float64{
				tariff.TEOffPeak: 0.3, tariff.TUSDOffPeak: 0.1, tariff.TEPeak: 0.5, tariff.TUSDPeak: 0.4,
				tariff.DemandPeak: 60, tariff.DemandOffPeak: 20,
			}),
			tariff.ModalityConventional: tariff.NewRateSet(tariff.ModalityConventional, map[tariff.RateKey]float64{
				tariff.TEOffPeak: 0.35, tariff.TUSDOffPeak: 0.25,
			}),
		},
	}, nil
}

type noFiles struct{}

func (noFiles) ReadFile(string) (string, error) { return "", errors.New("no files") }

type fakePDF struct{ text string }

func (p fakePDF) Read(io.Reader) (string, error) { return p.text, nil }

func jsonRule() extraction.Rule {
	return extraction.NewRule("json", func(text string) (extraction.Patch, bool) {
		var rec invoice.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, false
		}
		return func(r *invoice.Record) { *r = rec }, true
	})
}

func testRecord() invoice.Record {
	return invoice.Record{
		Identification: &invoice.Identification{
			InstallationNumber: invoice.String("0160012345"),
			ReferenceMonth:     invoice.String("01/2024"),
		},
		Consumption: invoice.Consumption{PeakKWh: invoice.Float(1000), OffPeakKWh: invoice.Float(5000)},
		Demand: &invoice.Demand{
			ContractedOffPeakKW: invoice.Float(600),
			Maxima: []invoice.PeriodValue{
				{Period: invoice.PeriodPeak, KW: 300},
				{Period: invoice.PeriodOffPeak, KW: 560},
			},
		},
		Taxes: []invoice.Tax{
			{Name: invoice.TaxPIS, Rate: invoice.Float(1.65)},
			{Name: invoice.TaxCOFINS, Rate: invoice.Float(7.6)},
		},
	}
}

func testText(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(testRecord())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := analysis.Config{
		Defaults: analysis.Tuning{
			LowerKW: 30, UpperKW: 1000, BlueSeedPeakKW: 100, BlueSeedOffPeakKW: 100,
			OverageTolerance: 1.05, OverageMultiplier: 2, AdjustmentDemandKW: 570, UpdatedPeriod: "DEZ-2024",
		},
		DefaultDistributor: "EDP ES",
		RateDetail:         "Não se aplica",
		Concurrency:        2,
		ArchiveRoot:        "/srv/faturas",
	}
	svc, err := analysis.NewService(cfg, extraction.NewExtractor(extraction.WithRules(jsonRule())), noFiles{}, fakeRates{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h, err := NewHandler(svc, fakePDF{text: testText(t)}, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h.Routes()
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(nil, nil, nil); err == nil {
		t.Fatalf("expected nil service error")
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
}

func TestExtractTexts(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/api/v1/invoices/extract", map[string]any{
		"textos":    []string{testText(t)},
		"pdf_paths": []string{"missing.pdf"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Records  []invoice.Record   `json:"faturas"`
		Failures []analysis.Failure `json:"falhas"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].InstallationID() != "0160012345" {
		t.Fatalf("unexpected records %+v", resp.Records)
	}
	if len(resp.Failures) != 1 {
		t.Fatalf("expected one read failure, got %+v", resp.Failures)
	}
}

func TestExtractRejectsPathsOutsideArchive(t *testing.T) {
	router := newTestRouter(t)
	for _, path := range []string{"../segredo.pdf", "/etc/passwd", "a/../../b.pdf"} {
		rec := do(t, router, http.MethodPost, "/api/v1/invoices/extract", map[string]any{
			"textos":    []string{testText(t)},
			"pdf_paths": []string{path},
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestExtractUpload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/extract", strings.NewReader("%PDF-1.4"))
	req.Header.Set("Content-Type", "application/pdf")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "0160012345") {
		t.Fatalf("expected extracted installation, got %s", rec.Body.String())
	}
}

func TestExtractRejectsEmptyRequest(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/api/v1/invoices/extract", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTariffs(t *testing.T) {
	router := newTestRouter(t)
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"ok", "/api/v1/tariffs?periodo=dez-2024", http.StatusOK},
		{"missing period", "/api/v1/tariffs", http.StatusBadRequest},
		{"bad period", "/api/v1/tariffs?periodo=2024-12", http.StatusBadRequest},
		{"unknown distributor", "/api/v1/tariffs?periodo=DEZ-2024&distribuidora=Nenhuma", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.target, nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBilling(t *testing.T) {
	router := newTestRouter(t)
	body := map[string]any{
		"faturas": []invoice.Record{testRecord()},
		"periodo": "DEZ-2024",
		"demanda": map[string]float64{"fora_ponta_kw": 560},
		"ere":     false,
	}
	rec := do(t, router, http.MethodPost, "/api/v1/billing/verde", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Statement struct {
			Total float64 `json:"total"`
		} `json:"faturamento"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := (5000*0.4 + 1000*2.0 + 560*25) / (1 - 0.0925)
	if diff := resp.Statement.Total - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected total %v, got %v", want, resp.Statement.Total)
	}

	rec = do(t, router, http.MethodPost, "/api/v1/billing/amarela", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown modality, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodPost, "/api/v1/billing/verde", map[string]any{"periodo": "DEZ-2024"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without invoices, got %d", rec.Code)
	}
}

func TestOptimization(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/api/v1/optimization", map[string]any{
		"faturas": []invoice.Record{testRecord()},
		"curvas":  true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp optimizationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Green.DemandaOtima != 533 {
		t.Fatalf("expected green 533, got %d", resp.Green.DemandaOtima)
	}
	if resp.GreenCurve == nil || resp.BlueSurface == nil {
		t.Fatalf("expected curves")
	}
}

func TestAnalysisAndExport(t *testing.T) {
	router := newTestRouter(t)
	body := map[string]any{"textos": []string{testText(t)}, "periodo": "JAN-2024"}

	rec := do(t, router, http.MethodPost, "/api/v1/analysis", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res analysis.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Tables.Comparison == nil || res.Green.DemandaOtima != 533 {
		t.Fatalf("unexpected analysis %+v", res.Green)
	}

	rec = do(t, router, http.MethodPost, "/api/v1/analysis/export.xlsx", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != contentTypeXLSX {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	if len(f.GetSheetList()) == 0 {
		t.Fatalf("expected sheets")
	}

	rec = do(t, router, http.MethodPost, "/api/v1/analysis", map[string]any{"textos": []string{"{}"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unbillable invoices, got %d", rec.Code)
	}
}
