package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"assat-psp/internal/auth"
	"assat-psp/internal/config"
	"assat-psp/internal/database"
	"assat-psp/internal/ledger/application"
	ledgerrepo "assat-psp/internal/ledger/infrastructure/postgres"
	"assat-psp/internal/projection"
)

var (
	flagVerbose bool
	flagActor   string
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operate the Assat custody ledger",
	Long:          "Run migrations and ledger operations against the configured Postgres database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log database and service activity")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "ledgerctl", "Subject recorded for operations")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	if flagVerbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// session holds what every database-backed command needs.
type session struct {
	cfg     config.Config
	db      *sql.DB
	service *application.Service
	ctx     context.Context
}

func openSession(ctx context.Context) (*session, error) {
	logger := newLogger()
	config.LoadEnv(logger)
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL, PG_DSN or DB_HOST/DB_NAME is required")
	}
	db, err := database.Connect(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	fee, err := decimal.NewFromString(cfg.Ledger.PSPFee)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	service, err := application.NewService(
		ledgerrepo.NewLedgerRepository(db),
		application.WithLogger(logger),
		application.WithPSPFee(fee),
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
		_ = db.Close()
		return nil, err
	}
	return &session{
		cfg:     cfg,
		db:      db,
		service: service,
		ctx:     auth.WithIdentity(ctx, auth.RoleAdmin, flagActor),
	}, nil
}

func (s *session) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}
