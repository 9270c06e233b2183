package ledger

import "github.com/shopspring/decimal"

// AuditSummary aggregates a municipality's charges.
// TotalPaidGross only counts paid charges with a positive gross amount, so withdrawals are excluded.
type AuditSummary struct {
	Total          int64           `json:"total"`
	Paid           int64           `json:"pagas"`
	Pending        int64           `json:"pendentes"`
	TotalPaidGross decimal.Decimal `json:"total_pago"`
}

// Summarize computes the audit summary from loaded charges.
func Summarize(charges []Charge) AuditSummary {
	s := AuditSummary{TotalPaidGross: decimal.Zero}
	for _, c := range charges {
		s.Total++
		switch c.Status {
		case StatusPaid:
			s.Paid++
			if c.Gross.IsPositive() {
				s.TotalPaidGross = s.TotalPaidGross.Add(c.Gross)
			}
		case StatusPending:
			s.Pending++
		}
	}
	return s
}

// BalanceCheck compares a stored custody balance with the sum of its paid ledger entries.
type BalanceCheck struct {
	MunicipalityID int64           `json:"municipio_id"`
	Name           string          `json:"nome"`
	Balance        decimal.Decimal `json:"saldo_atual"`
	LedgerTotal    decimal.Decimal `json:"total_lancamentos"`
}

// Drift is Balance minus LedgerTotal.
func (c BalanceCheck) Drift() decimal.Decimal {
	return c.Balance.Sub(c.LedgerTotal)
}

// Consistent reports whether the balance matches its ledger entries.
func (c BalanceCheck) Consistent() bool {
	return c.Drift().IsZero()
}

// LedgerTotal sums the gross of every paid entry, withdrawals included.
func LedgerTotal(charges []Charge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		if c.Status == StatusPaid {
			total = total.Add(c.Gross)
		}
	}
	return total
}
