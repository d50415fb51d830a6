package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	analysis "tariff-advisor/internal/analysis/application"
	analysishttp "tariff-advisor/internal/analysis/interfaces/http"
	"tariff-advisor/internal/invoice/extraction"
	"tariff-advisor/internal/invoice/infrastructure/pdftext"
	"tariff-advisor/internal/observability/metrics"
	tariffapp "tariff-advisor/internal/tariff/application"
	tariff "tariff-advisor/internal/tariff/domain"
	tariffexcel "tariff-advisor/internal/tariff/infrastructure/excel"
	tariffpostgres "tariff-advisor/internal/tariff/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load error: %v", err)
	}
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	analysisCfg, err := analysis.LoadConfig()
	if err != nil {
		logger.Fatalf("analysis config error: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	}
	metrics.Init(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LoadTimeout)
	table, err := loadRateTable(ctx, db, analysisCfg, cfg.ImportRates, logger)
	cancel()
	if err != nil {
		logger.Fatalf("rate table error: %v", err)
	}
	logger.Printf("rate table loaded: rows=%d", table.Len())

	policy, err := extraction.ParseContractedPolicy(analysisCfg.ContractedPolicy)
	if err != nil {
		logger.Fatalf("extraction policy error: %v", err)
	}
	extractor := extraction.NewExtractor(
		extraction.WithLogger(logger),
		extraction.WithObserver(metrics.RuleObserver{}),
		extraction.WithContractedPolicy(policy),
	)

	reader := pdftext.NewReader()
	opts := []analysis.Option{analysis.WithLogger(logger)}
	if analysisCfg.ArchiveRoot != "" {
		archive, err := pdftext.NewArchive(analysisCfg.ArchiveRoot)
		if err != nil {
			logger.Fatalf("invoice archive error: %v", err)
		}
		opts = append(opts, analysis.WithArchive(archive))
	}
	service, err := analysis.NewService(analysisCfg, extractor, reader, table, opts...)
	if err != nil {
		logger.Fatalf("analysis service error: %v", err)
	}
	handler, err := analysishttp.NewHandler(service, reader, logger)
	if err != nil {
		logger.Fatalf("analysis handler error: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// loadRateTable reads the rate table from Postgres when a database is
// configured, otherwise from the workbook. With importRates the workbook is
// first copied into Postgres, one distributor at a time.
func loadRateTable(ctx context.Context, db *sql.DB, cfg analysis.Config, importRates bool, logger *log.Logger) (*tariffapp.Table, error) {
	var workbook *tariffexcel.Loader
	if cfg.RateTablePath != "" {
		loader, err := tariffexcel.NewLoader(cfg.RateTablePath, tariffexcel.WithSheet(cfg.RateTableSheet))
		if err != nil {
			return nil, err
		}
		workbook = loader
	}
	if db == nil {
		if workbook == nil {
			log.Fatal("RATE_TABLE_PATH or DATABASE_URL is required")
		}
		return tariffapp.LoadTable(ctx, workbook)
	}

	source, err := tariffpostgres.NewRateSource(db)
	if err != nil {
		return nil, err
	}
	if importRates && workbook != nil {
		rows, err := workbook.LoadRows(ctx)
		if err != nil {
			return nil, err
		}
		byDistributor := make(map[string][]tariff.Row)
		for _, row := range rows {
			byDistributor[row.Distributor] = append(byDistributor[row.Distributor], row)
		}
		names := make([]string, 0, len(byDistributor))
		for name := range byDistributor {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := source.SaveRows(ctx, name, byDistributor[name]); err != nil {
				return nil, err
			}
			logger.Printf("rate table imported: distributor=%s rows=%d", name, len(byDistributor[name]))
		}
	}
	return tariffapp.LoadTable(ctx, source)
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	ImportRates bool
	LoadTimeout time.Duration
}

func loadConfig() config {
	return config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		ImportRates: getenvBoolDefault("RATE_TABLE_IMPORT", false),
		LoadTimeout: getenvDuration("RATE_TABLE_LOAD_TIMEOUT", time.Minute),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
