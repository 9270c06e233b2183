package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"assat-psp/internal/config"
	"assat-psp/internal/database"
	"assat-psp/internal/ledger/application"
	ledger "assat-psp/internal/ledger/domain"
	"assat-psp/internal/projection"
	"assat-psp/migrations"
)

var (
	flagName    string
	flagCNPJ    string
	flagTaxType string
	flagAmount  string
	flagMethod  string
	flagBalance string
	flagDays    int
	flagStatus  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := database.Migrate(cmd.Context(), s.db, migrations.FS, newLogger()); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

var municipalityCmd = &cobra.Command{
	Use:   "municipality",
	Short: "Manage municipalities",
}

var municipalityRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a municipality by name and CNPJ",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		id, created, err := s.service.RegisterMunicipality(s.ctx, flagName, flagCNPJ)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("CNPJ %s already registered\n", flagCNPJ)
			return nil
		}
		fmt.Printf("municipality %d registered\n", id)
		return nil
	},
}

var municipalityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List municipalities and balances",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		list, err := s.service.ListMunicipalities(s.ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNOME\tCNPJ\tSALDO")
		for _, m := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, m.Name, m.CNPJ, ledger.FormatBRL(m.Balance))
		}
		return w.Flush()
	},
}

var chargeCmd = &cobra.Command{
	Use:   "charge",
	Short: "Create, settle and list charges",
}

var chargeCreateCmd = &cobra.Command{
	Use:   "create <municipality-id>",
	Short: "Issue a pending charge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		municipalityID, err := parseID(args[0])
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(flagAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q", flagAmount)
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		id, err := s.service.CreateCharge(s.ctx, municipalityID, flagTaxType, amount, flagMethod)
		if err != nil {
			return err
		}
		fmt.Printf("charge %d created (pendente)\n", id)
		return nil
	},
}

var chargeSettleCmd = &cobra.Command{
	Use:   "settle <charge-id>",
	Short: "Confirm payment of a pending charge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chargeID, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		ok, err := s.service.SettleCharge(s.ctx, chargeID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s", ledger.MessageChargeNotSettled)
		}
		fmt.Printf("charge %d settled\n", chargeID)
		return nil
	},
}

var chargeListCmd = &cobra.Command{
	Use:   "list <municipality-id>",
	Short: "List a municipality's charges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		municipalityID, err := parseID(args[0])
		if err != nil {
			return err
		}
		var filter ledger.ChargeFilter
		if flagStatus != "" {
			status, ok := ledger.NormalizeStatus(flagStatus)
			if !ok {
				return fmt.Errorf("invalid status %q", flagStatus)
			}
			filter.Status = status
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		charges, err := s.service.ListCharges(s.ctx, municipalityID, filter)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTRIBUTO\tVALOR\tSTATUS\tMETODO\tPAGO EM")
		for _, c := range charges {
			paidAt := "-"
			if c.PaidAt != nil {
				paidAt = c.PaidAt.Local().Format("02/01/2006 15:04")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.TaxType, ledger.FormatBRL(c.Gross), c.Status, c.Method, paidAt)
		}
		return w.Flush()
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <municipality-id>",
	Short: "Transfer funds out of custody",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		municipalityID, err := parseID(args[0])
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(flagAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q", flagAmount)
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		res, err := s.service.Withdraw(s.ctx, municipalityID, amount)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("%s", res.Message)
		}
		fmt.Println(res.Message)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <municipality-id>",
	Short: "Print the audit summary and dashboard alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		municipalityID, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		d, err := s.service.Dashboard(s.ctx, municipalityID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Municipio\t%s\n", d.Municipality.Name)
		fmt.Fprintf(w, "Saldo custodia\t%s\n", ledger.FormatBRL(d.Municipality.Balance))
		fmt.Fprintf(w, "Guias\t%d\n", d.Summary.Total)
		fmt.Fprintf(w, "Pagas\t%d\n", d.Summary.Paid)
		fmt.Fprintf(w, "Pendentes\t%d\n", d.Summary.Pending)
		fmt.Fprintf(w, "Total arrecadado\t%s\n", ledger.FormatBRL(d.Summary.TotalPaidGross))
		fmt.Fprintf(w, "Taxas Assat\t%s\n", ledger.FormatBRL(d.FeeTotal))
		fmt.Fprintf(w, "Rendimento/dia\t%s\n", ledger.FormatBRL(d.DailyYield))
		if err := w.Flush(); err != nil {
			return err
		}
		for _, a := range d.Alerts {
			fmt.Printf("[%s] %s\n", a.Level, a.Message)
		}
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Simulate capitalization of a balance",
	Long:  "Simulate capitalization of --balance over --days trading days. No database access.",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := config.Defaults()
		config.LoadEnv(newLogger())
		if loaded, err := config.Load(); err == nil {
			cfg = loaded
		}
		balance, err := decimal.NewFromString(flagBalance)
		if err != nil {
			return fmt.Errorf("invalid balance %q", flagBalance)
		}
		if err := application.ValidateHorizon(flagDays, cfg.Projection.MaxDays); err != nil {
			return err
		}
		rate := projection.Rate{Annual: cfg.Projection.AnnualRate, TradingDays: cfg.Projection.TradingDays}
		value, _ := balance.Float64()
		p := application.ProjectBalance(rate, value, flagDays, time.Now())

		fmt.Printf("Projecao final (%d dias): %s\n", p.Days, ledger.FormatBRL(decimal.NewFromFloat(p.FinalValue)))
		fmt.Printf("Ganho estimado: %s\n", ledger.FormatBRL(decimal.NewFromFloat(p.Gain)))
		fmt.Printf("Taxa diaria: %.6f%% (%.2f%% a.a.)\n", p.DailyRate*100, p.AnnualRate*100)
		return nil
	},
}

func init() {
	municipalityRegisterCmd.Flags().StringVar(&flagName, "name", "", "Municipality name")
	municipalityRegisterCmd.Flags().StringVar(&flagCNPJ, "cnpj", "", "Municipality CNPJ")
	_ = municipalityRegisterCmd.MarkFlagRequired("name")
	_ = municipalityRegisterCmd.MarkFlagRequired("cnpj")
	municipalityCmd.AddCommand(municipalityRegisterCmd, municipalityListCmd)

	chargeCreateCmd.Flags().StringVar(&flagTaxType, "tax", ledger.KnownTaxTypes[0], "Tax type ("+strings.Join(ledger.KnownTaxTypes, ", ")+", or any other label)")
	chargeCreateCmd.Flags().StringVar(&flagAmount, "amount", "", "Gross amount")
	chargeCreateCmd.Flags().StringVar(&flagMethod, "method", "Pix", "Payment method (Pix, Boleto, Cartão)")
	_ = chargeCreateCmd.MarkFlagRequired("amount")
	chargeListCmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status (pendente, pago)")
	chargeCmd.AddCommand(chargeCreateCmd, chargeSettleCmd, chargeListCmd)

	withdrawCmd.Flags().StringVar(&flagAmount, "amount", "", "Amount to withdraw")
	_ = withdrawCmd.MarkFlagRequired("amount")

	projectCmd.Flags().StringVar(&flagBalance, "balance", "0", "Starting balance")
	projectCmd.Flags().IntVarP(&flagDays, "days", "n", 30, "Horizon in days")

	rootCmd.AddCommand(migrateCmd, municipalityCmd, chargeCmd, withdrawCmd, summaryCmd, projectCmd)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}
