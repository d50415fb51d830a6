package metrics

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "rate_rows",
			Help: "Rate table rows stored in Postgres",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM tariff_rates")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "rate_distributors",
			Help: "Distributors with stored rate rows",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(DISTINCT distributor) FROM tariff_rates")
		},
	))
}

const scrapeQueryTimeout = 2 * time.Second

// queryCount runs a COUNT query for a gauge; failures read as zero.
func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), scrapeQueryTimeout)
	defer cancel()
	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics gauge query failed: query=%q err=%v", query, err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
