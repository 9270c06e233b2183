package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Municipality is the custody account owner.
type Municipality struct {
	ID        int64           `json:"id"`
	Name      string          `json:"nome"`
	CNPJ      string          `json:"cnpj"`
	Balance   decimal.Decimal `json:"saldo_atual"`
	CreatedAt time.Time       `json:"criado_em"`
}

// NewMunicipality validates registration input.
func NewMunicipality(name, cnpj string) (Municipality, error) {
	name = strings.TrimSpace(name)
	cnpj = strings.TrimSpace(cnpj)
	if name == "" {
		return Municipality{}, &ValidationError{Field: "nome", Reason: "obrigatório"}
	}
	if cnpj == "" {
		return Municipality{}, &ValidationError{Field: "cnpj", Reason: "obrigatório"}
	}
	if len(cnpj) > MaxCNPJLength {
		return Municipality{}, &ValidationError{Field: "cnpj", Reason: "excede 18 caracteres"}
	}
	return Municipality{Name: name, CNPJ: cnpj, Balance: decimal.Zero}, nil
}

// CanWithdraw reports whether amount can leave the custody balance.
func (m Municipality) CanWithdraw(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(m.Balance)
}

// MaxCNPJLength matches the cnpj column width.
const MaxCNPJLength = 18
