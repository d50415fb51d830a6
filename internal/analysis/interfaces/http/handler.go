package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analysis "tariff-advisor/internal/analysis/application"
	billing "tariff-advisor/internal/billing/domain"
	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/observability/metrics"
	"tariff-advisor/internal/optimization"
	"tariff-advisor/internal/ptbr"
	"tariff-advisor/internal/reporting"
	tariff "tariff-advisor/internal/tariff/domain"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxUploadBytes  = 32 << 20
)

// PDFReader extracts text from an uploaded PDF.
type PDFReader interface {
	Read(src io.Reader) (string, error)
}

// Handler serves the analysis API.
type Handler struct {
	service *analysis.Service
	pdf     PDFReader
	logger  *log.Logger
}

// NewHandler constructs a Handler. pdf may be nil, in which case raw PDF
// uploads are rejected.
func NewHandler(service *analysis.Service, pdf PDFReader, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("analysis handler: nil service")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{service: service, pdf: pdf, logger: logger}, nil
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invoices/extract", h.handleExtract)
		r.Get("/tariffs", h.handleTariffs)
		r.Post("/billing/{modality}", h.handleBilling)
		r.Post("/optimization", h.handleOptimization)
		r.Post("/analysis", h.handleAnalysis)
		r.Post("/analysis/export.xlsx", h.handleExport)
	})
	return r
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypePDF) {
		h.extractUpload(w, r)
		return
	}
	var req analysis.Request
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	records, failures, err := h.service.ExtractAll(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"faturas": records, "falhas": failures})
}

func (h *Handler) extractUpload(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		http.Error(w, "pdf upload not supported", http.StatusUnsupportedMediaType)
		return
	}
	start := time.Now()
	text, err := h.pdf.Read(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		metrics.ObserveExtraction(metrics.ResultError, time.Since(start))
		http.Error(w, "unreadable pdf: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	rec := h.service.Extractor().Extract(text)
	metrics.ObserveExtraction(metrics.ResultSuccess, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]any{"faturas": []invoice.Record{rec}})
}

func (h *Handler) handleTariffs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := q.Get("periodo")
	if period == "" {
		http.Error(w, "periodo is required", http.StatusBadRequest)
		return
	}
	if _, err := ptbr.ParsePeriod(period); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sets, err := h.service.LookupRates(period, q.Get("distribuidora"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

type billingRequest struct {
	Records     []invoice.Record      `json:"faturas"`
	Period      string                `json:"periodo"`
	Distributor string                `json:"distribuidora"`
	Demand      *billing.DemandConfig `json:"demanda,omitempty"`
	ERE         *bool                 `json:"ere,omitempty"`
}

func (h *Handler) handleBilling(w http.ResponseWriter, r *http.Request) {
	modality := tariff.NormalizeModality(chi.URLParam(r, "modality"))
	var req billingRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		http.Error(w, "faturas is required", http.StatusBadRequest)
		return
	}
	calc, err := h.service.Calculator(modality, req.Distributor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	set, ere, err := h.rates(req.Period, req.Distributor, modality)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if req.ERE != nil && !*req.ERE {
		ere = 0
	}
	analysis.SortByMonth(req.Records)
	stmt, err := calc.Breakdown(req.Records, set, ere, req.Demand)
	if err != nil && len(stmt.Months) == 0 {
		h.respondError(w, err)
		return
	}
	resp := map[string]any{"faturamento": stmt}
	if err != nil {
		resp["erro"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type optimizationRequest struct {
	Records     []invoice.Record `json:"faturas"`
	Period      string           `json:"periodo"`
	Distributor string           `json:"distribuidora"`
	Curves      bool             `json:"curvas"`
}

type optimizationResponse struct {
	Green       optimization.GreenResult `json:"result_verde"`
	Blue        optimization.BlueResult  `json:"result_azul"`
	GreenCurve  *optimization.Curve      `json:"curva_verde,omitempty"`
	BlueSurface *optimization.Surface    `json:"superficie_azul,omitempty"`
}

func (h *Handler) handleOptimization(w http.ResponseWriter, r *http.Request) {
	var req optimizationRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		http.Error(w, "faturas is required", http.StatusBadRequest)
		return
	}
	if req.Period == "" {
		req.Period = h.service.Config().TuningFor(req.Distributor).UpdatedPeriod
	}
	green, ere, err := h.rates(req.Period, req.Distributor, tariff.ModalityGreen)
	if err != nil {
		h.respondError(w, err)
		return
	}
	blue, _, err := h.rates(req.Period, req.Distributor, tariff.ModalityBlue)
	if err != nil {
		h.respondError(w, err)
		return
	}
	opt, err := h.service.Optimizer(req.Distributor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	analysis.SortByMonth(req.Records)

	var resp optimizationResponse
	if resp.Green, err = opt.OptimizeGreen(req.Records, green, ere); err != nil {
		h.respondError(w, err)
		return
	}
	if resp.Blue, err = opt.OptimizeBlue(req.Records, blue, ere); err != nil {
		h.respondError(w, err)
		return
	}
	if req.Curves {
		curve, err := opt.GreenCurve(req.Records, green, ere)
		if err != nil {
			h.respondError(w, err)
			return
		}
		surface, err := opt.BlueSurface(req.Records, blue, ere)
		if err != nil {
			h.respondError(w, err)
			return
		}
		resp.GreenCurve, resp.BlueSurface = &curve, &surface
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) rates(period, distributor string, modality tariff.Modality) (tariff.RateSet, float64, error) {
	sets, err := h.service.LookupRates(period, distributor)
	if err != nil {
		return tariff.RateSet{}, 0, err
	}
	set, err := sets.Set(modality)
	if err != nil {
		return tariff.RateSet{}, 0, err
	}
	return set, h.service.ERERate(sets), nil
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := h.service.Analyze(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req analysis.Request
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := h.service.Analyze(r.Context(), req)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.respondError(w, err)
		return
	}
	data, err := reporting.BuildAnalysisXLSX(res.Tables)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.respondError(w, err)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentTypeXLSX)
	w.Header().Set("Content-Disposition", `attachment; filename="analise_tarifaria.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, bytes.NewReader(data))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, analysis.ErrEmptyRequest),
		errors.Is(err, analysis.ErrArchiveUnavailable),
		errors.Is(err, analysis.ErrPathOutsideArchive),
		errors.Is(err, ptbr.ErrInvalidPeriod),
		errors.Is(err, tariff.ErrEmptyDistributor):
		status = http.StatusBadRequest
	case errors.Is(err, tariff.ErrNoRates),
		errors.Is(err, tariff.ErrModalityNotFound):
		status = http.StatusNotFound
	case errors.Is(err, analysis.ErrNoBillableInvoices),
		errors.Is(err, billing.ErrNoRecords),
		errors.Is(err, billing.ErrMissingConsumption),
		errors.Is(err, billing.ErrMissingContracted),
		errors.Is(err, billing.ErrInvalidTaxRates),
		errors.Is(err, billing.ErrInvalidDemand),
		errors.Is(err, tariff.ErrMissingRate):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Printf("analysis http error: err=%v", err)
	}
	writeJSON(w, status, map[string]string{"erro": err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
