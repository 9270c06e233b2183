package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"assat-psp/internal/audit"
	"assat-psp/internal/auth"
	"assat-psp/internal/config"
	"assat-psp/internal/database"
	"assat-psp/internal/ledger/application"
	ledgerrepo "assat-psp/internal/ledger/infrastructure/postgres"
	ledgerhttp "assat-psp/internal/ledger/interfaces"
	"assat-psp/internal/observability/metrics"
	"assat-psp/internal/projection"
	"assat-psp/migrations"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	config.LoadEnv(logger)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if err := cfg.RequireServer(); err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatalf("db error: %v", err)
	}
	defer db.Close()

	if getenvDefault("MIGRATE_ON_START", "true") == "true" {
		if err := database.Migrate(ctx, db, migrations.FS, logger); err != nil {
			logger.Fatalf("migrate error: %v", err)
		}
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	ledgerService, err := application.NewService(
		ledgerrepo.NewLedgerRepository(db),
		application.WithLogger(logger),
		application.WithClock(systemClock{}),
		application.WithPublisher(ledgerhttp.NewLoggingPublisher(logger)),
		application.WithPSPFee(decimal.RequireFromString(cfg.Ledger.PSPFee)),
		application.WithProjection(projection.Rate{
			Annual:      cfg.Projection.AnnualRate,
			TradingDays: cfg.Projection.TradingDays,
		}, cfg.Projection.MaxDays),
		application.WithAlertThresholds(
			decimal.NewFromFloat(cfg.Alerts.PendingThreshold),
			decimal.NewFromFloat(cfg.Alerts.CapitalizationThreshold),
		),
	)
	if err != nil {
		logger.Fatalf("ledger service error: %v", err)
	}
	ledgerHandler, err := ledgerhttp.NewLedgerHandler(ledgerService, auditRepo, logger, cfg.Projection.DefaultDays)
	if err != nil {
		logger.Fatalf("ledger handler error: %v", err)
	}

	credentials, err := buildCredentialStore(cfg.Auth)
	if err != nil {
		logger.Fatalf("credential store error: %v", err)
	}
	loginHandler, err := auth.NewLoginHandler(credentials, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, logger)
	if err != nil {
		logger.Fatalf("login handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/api/v1/auth/login"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/auth/login", loginHandler)
	mux.Handle("/api/v1/municipalities", ledgerHandler)
	mux.Handle("/api/v1/municipalities/", ledgerHandler)
	mux.Handle("/api/v1/charges/", ledgerHandler)
	mux.Handle("/api/v1/reconciliation", ledgerHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func buildCredentialStore(cfg config.AuthConfig) (auth.CredentialStore, error) {
	if cfg.AdminPasswordHash != "" {
		return auth.NewStaticCredentialStore(cfg.AdminUser, []byte(cfg.AdminPasswordHash), auth.RoleAdmin)
	}
	return auth.NewStaticCredentialStoreFromPassword(cfg.AdminUser, cfg.AdminPassword, auth.RoleAdmin)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
