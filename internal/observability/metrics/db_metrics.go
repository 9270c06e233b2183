package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "custody_balance_total",
			Help: "Sum of custody balances across municipalities",
		},
		func() float64 {
			return queryFloat(db, logger, "SELECT COALESCE(SUM(saldo_atual), 0)::float8 FROM municipios")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "charges_pending",
			Help: "Charges awaiting settlement",
		},
		func() float64 {
			return queryFloat(db, logger, "SELECT COUNT(*)::float8 FROM cobrancas WHERE status = 'pendente'")
		},
	))
}

func queryFloat(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var value float64
	if err := db.QueryRow(query).Scan(&value); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}
