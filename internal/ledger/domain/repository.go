package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// WithdrawResult is the outcome of a withdrawal attempt.
type WithdrawResult struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	ChargeID int64  `json:"charge_id,omitempty"`
}

// Repository is the ledger store. Mutations run in their own unit of work.
type Repository interface {
	RegisterMunicipality(ctx context.Context, m Municipality) (id int64, created bool, err error)
	ListMunicipalities(ctx context.Context) ([]Municipality, error)
	GetMunicipality(ctx context.Context, id int64) (*Municipality, error)
	CreateCharge(ctx context.Context, c NewCharge) (int64, error)
	SettleCharge(ctx context.Context, chargeID int64) (bool, error)
	Withdraw(ctx context.Context, municipalityID int64, amount decimal.Decimal) (WithdrawResult, error)
	ListCharges(ctx context.Context, municipalityID int64, filter ChargeFilter) ([]Charge, error)
	AuditSummary(ctx context.Context, municipalityID int64) (AuditSummary, error)
	CheckBalances(ctx context.Context) ([]BalanceCheck, error)
}
