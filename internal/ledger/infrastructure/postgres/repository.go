package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	ledger "assat-psp/internal/ledger/domain"
)

// errRollback aborts a unit of work that has nothing to commit.
var errRollback = errors.New("ledger repo: rollback")

// LedgerRepository is the Postgres ledger store over municipios/cobrancas.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository constructs a repository on a pooled *sql.DB.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// withTx runs fn in a transaction acquired from the pool. The transaction is
// rolled back on every path that does not reach Commit.
func (r *LedgerRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger repo: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger repo: commit: %w", err)
	}
	return nil
}

// RegisterMunicipality inserts a municipality with a zero balance. A duplicate CNPJ is a no-op.
func (r *LedgerRepository) RegisterMunicipality(ctx context.Context, m ledger.Municipality) (int64, bool, error) {
	if r == nil || r.db == nil {
		return 0, false, errors.New("ledger repo: nil db")
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO municipios (nome, cnpj)
VALUES ($1, $2)
ON CONFLICT (cnpj) DO NOTHING
RETURNING id`, m.Name, m.CNPJ).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("ledger repo: register municipality: %w", err)
	}
	return id, true, nil
}

// ListMunicipalities returns all municipalities ordered by name.
func (r *LedgerRepository) ListMunicipalities(ctx context.Context) ([]ledger.Municipality, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, nome, cnpj, saldo_atual, criado_em
FROM municipios
ORDER BY nome ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger repo: list municipalities: %w", err)
	}
	defer rows.Close()

	var result []ledger.Municipality
	for rows.Next() {
		m, err := scanMunicipality(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMunicipality loads a municipality; nil when absent.
func (r *LedgerRepository) GetMunicipality(ctx context.Context, id int64) (*ledger.Municipality, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, nome, cnpj, saldo_atual, criado_em
FROM municipios
WHERE id = $1`, id)
	m, err := scanMunicipality(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// CreateCharge inserts a pending charge. The balance is not touched.
func (r *LedgerRepository) CreateCharge(ctx context.Context, c ledger.NewCharge) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("ledger repo: nil db")
	}
	fee := c.PSPFee
	if fee.IsZero() {
		fee = ledger.DefaultPSPFee
	}
	method := c.Method
	if method == "" {
		method = ledger.MethodPix
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO cobrancas (municipio_id, tipo_tributo, valor_bruto, taxa_psp, status, metodo_pagamento)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, c.MunicipalityID, c.TaxType, c.Amount, fee, string(ledger.StatusPending), string(method)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger repo: create charge: %w", err)
	}
	return id, nil
}

// SettleCharge marks a pending charge paid and credits its municipality in one transaction.
// The conditional update lets at most one concurrent caller win; the loser sees false.
func (r *LedgerRepository) SettleCharge(ctx context.Context, chargeID int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("ledger repo: nil db")
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var municipalityID int64
		var gross decimal.Decimal
		err := tx.QueryRowContext(ctx, `
UPDATE cobrancas
SET status = $2, data_pagamento = NOW()
WHERE id = $1 AND status = $3
RETURNING municipio_id, valor_bruto`, chargeID, string(ledger.StatusPaid), string(ledger.StatusPending)).Scan(&municipalityID, &gross)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errRollback
			}
			return fmt.Errorf("ledger repo: settle charge %d: %w", chargeID, err)
		}

		res, err := tx.ExecContext(ctx, `
UPDATE municipios
SET saldo_atual = saldo_atual + $1
WHERE id = $2`, gross, municipalityID)
		if err != nil {
			return fmt.Errorf("ledger repo: credit municipality %d: %w", municipalityID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return ledger.ErrMunicipalityNotFound
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Withdraw debits the custody balance and records a paid transfer entry in one transaction.
// The municipality row is locked so concurrent withdrawals serialize.
func (r *LedgerRepository) Withdraw(ctx context.Context, municipalityID int64, amount decimal.Decimal) (ledger.WithdrawResult, error) {
	if r == nil || r.db == nil {
		return ledger.WithdrawResult{}, errors.New("ledger repo: nil db")
	}
	var chargeID int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx, `
SELECT saldo_atual
FROM municipios
WHERE id = $1
FOR UPDATE`, municipalityID).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.ErrMunicipalityNotFound
			}
			return fmt.Errorf("ledger repo: lock municipality %d: %w", municipalityID, err)
		}
		if amount.GreaterThan(balance) {
			return ledger.ErrInsufficientBalance
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE municipios
SET saldo_atual = saldo_atual - $1
WHERE id = $2`, amount, municipalityID); err != nil {
			return fmt.Errorf("ledger repo: debit municipality %d: %w", municipalityID, err)
		}

		err = tx.QueryRowContext(ctx, `
INSERT INTO cobrancas (municipio_id, tipo_tributo, valor_bruto, taxa_psp, status, metodo_pagamento, data_pagamento)
VALUES ($1, $2, $3, 0.00, $4, $5, NOW())
RETURNING id`, municipalityID, ledger.WithdrawalTaxType, amount.Neg(), string(ledger.StatusPaid), string(ledger.MethodTransfer)).Scan(&chargeID)
		if err != nil {
			return fmt.Errorf("ledger repo: record withdrawal: %w", err)
		}
		return nil
	})
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return ledger.WithdrawResult{OK: false, Message: ledger.MessageInsufficientBalance}, nil
	}
	if err != nil {
		return ledger.WithdrawResult{}, err
	}
	return ledger.WithdrawResult{OK: true, Message: ledger.MessageWithdrawOK, ChargeID: chargeID}, nil
}

// ListCharges returns a municipality's charges ordered by id.
func (r *LedgerRepository) ListCharges(ctx context.Context, municipalityID int64, filter ledger.ChargeFilter) ([]ledger.Charge, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := `
SELECT id, municipio_id, tipo_tributo, valor_bruto, taxa_psp, status, metodo_pagamento, data_pagamento, criado_em
FROM cobrancas
WHERE municipio_id = $1`
	args := []any{municipalityID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	query += `
ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger repo: list charges: %w", err)
	}
	defer rows.Close()

	var result []ledger.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AuditSummary aggregates counts and the positive paid gross in the database.
func (r *LedgerRepository) AuditSummary(ctx context.Context, municipalityID int64) (ledger.AuditSummary, error) {
	if r == nil || r.db == nil {
		return ledger.AuditSummary{}, errors.New("ledger repo: nil db")
	}
	var s ledger.AuditSummary
	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = $2),
	COUNT(*) FILTER (WHERE status = $3),
	COALESCE(SUM(valor_bruto) FILTER (WHERE status = $2 AND valor_bruto > 0), 0)
FROM cobrancas
WHERE municipio_id = $1`, municipalityID, string(ledger.StatusPaid), string(ledger.StatusPending)).
		Scan(&s.Total, &s.Paid, &s.Pending, &s.TotalPaidGross)
	if err != nil {
		return ledger.AuditSummary{}, fmt.Errorf("ledger repo: audit summary: %w", err)
	}
	return s, nil
}

// CheckBalances compares every stored balance with the sum of its paid entries.
func (r *LedgerRepository) CheckBalances(ctx context.Context) ([]ledger.BalanceCheck, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT m.id, m.nome, m.saldo_atual, COALESCE(SUM(c.valor_bruto) FILTER (WHERE c.status = $1), 0)
FROM municipios m
LEFT JOIN cobrancas c ON c.municipio_id = m.id
GROUP BY m.id, m.nome, m.saldo_atual
ORDER BY m.id ASC`, string(ledger.StatusPaid))
	if err != nil {
		return nil, fmt.Errorf("ledger repo: check balances: %w", err)
	}
	defer rows.Close()

	var result []ledger.BalanceCheck
	for rows.Next() {
		var c ledger.BalanceCheck
		if err := rows.Scan(&c.MunicipalityID, &c.Name, &c.Balance, &c.LedgerTotal); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMunicipality(row rowScanner) (*ledger.Municipality, error) {
	var m ledger.Municipality
	if err := row.Scan(&m.ID, &m.Name, &m.CNPJ, &m.Balance, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func scanCharge(row rowScanner) (ledger.Charge, error) {
	var c ledger.Charge
	var status string
	var method string
	var paidAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.MunicipalityID,
		&c.TaxType,
		&c.Gross,
		&c.PSPFee,
		&status,
		&method,
		&paidAt,
		&c.CreatedAt,
	)
	if err != nil {
		return ledger.Charge{}, err
	}
	c.Status = ledger.ChargeStatus(status)
	c.Method = ledger.PaymentMethod(method)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		c.PaidAt = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

var _ ledger.Repository = (*LedgerRepository)(nil)
