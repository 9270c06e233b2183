package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ledger "assat-psp/internal/ledger/domain"
)

var flagOutDir string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check every custody balance against its paid ledger entries",
	Long:  "Compare saldo_atual with the sum of paid entries for every municipality. Exits non-zero when any balance drifted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		checks, drifted, err := s.service.Reconcile(s.ctx)
		if err != nil {
			return err
		}
		if flagOutDir != "" {
			if err := os.MkdirAll(flagOutDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(flagOutDir, "balance_checks.csv")
			if err := writeBalanceChecksFile(path, checks); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
		}
		if err := printBalanceChecks(os.Stdout, drifted); err != nil {
			return err
		}
		if len(drifted) > 0 {
			return fmt.Errorf("%d of %d balances drifted", len(drifted), len(checks))
		}
		fmt.Printf("%d balances consistent\n", len(checks))
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&flagOutDir, "out", "", "Directory for balance_checks.csv (optional)")
	rootCmd.AddCommand(reconcileCmd)
}

func printBalanceChecks(out io.Writer, checks []ledger.BalanceCheck) error {
	if len(checks) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNOME\tSALDO\tLANCAMENTOS\tDIFERENCA")
	for _, c := range checks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.MunicipalityID, c.Name,
			ledger.FormatBRL(c.Balance), ledger.FormatBRL(c.LedgerTotal), ledger.FormatBRL(c.Drift()))
	}
	return w.Flush()
}

func writeBalanceChecksFile(path string, checks []ledger.BalanceCheck) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeBalanceChecks(file, checks)
}

func writeBalanceChecks(out io.Writer, checks []ledger.BalanceCheck) error {
	writer := csv.NewWriter(out)
	if err := writer.Write([]string{
		"municipio_id",
		"nome",
		"saldo_atual",
		"total_lancamentos",
		"diferenca",
		"consistente",
	}); err != nil {
		return err
	}
	for _, c := range checks {
		if err := writer.Write([]string{
			strconv.FormatInt(c.MunicipalityID, 10),
			c.Name,
			c.Balance.StringFixed(2),
			c.LedgerTotal.StringFixed(2),
			c.Drift().StringFixed(2),
			strconv.FormatBool(c.Consistent()),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
