package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeStatus is the persisted charge state.
type ChargeStatus string

const (
	StatusPending ChargeStatus = "pendente"
	StatusPaid    ChargeStatus = "pago"
)

// NormalizeStatus validates a status string.
func NormalizeStatus(value string) (ChargeStatus, bool) {
	switch ChargeStatus(value) {
	case StatusPending, StatusPaid:
		return ChargeStatus(value), true
	default:
		return "", false
	}
}

// PaymentMethod is how a charge is paid.
type PaymentMethod string

const (
	MethodPix      PaymentMethod = "Pix"
	MethodBoleto   PaymentMethod = "Boleto"
	MethodCard     PaymentMethod = "Cartão"
	MethodTransfer PaymentMethod = "TED/PIX"
)

// NormalizeMethod accepts the billing methods; the transfer method is reserved for withdrawals.
func NormalizeMethod(value string) (PaymentMethod, bool) {
	switch PaymentMethod(value) {
	case MethodPix, MethodBoleto, MethodCard:
		return PaymentMethod(value), true
	case "":
		return MethodPix, true
	default:
		return "", false
	}
}

const (
	// WithdrawalTaxType labels outbound ledger entries.
	WithdrawalTaxType = "SAQUE (Transferência)"

	MaxTaxTypeLength = 50
)

// DefaultPSPFee is recorded on every billing charge. It is never applied to settlement arithmetic.
var DefaultPSPFee = decimal.RequireFromString("0.90")

// KnownTaxTypes are the categories offered to operators; tax type stays free-form.
var KnownTaxTypes = []string{"IPTU", "ISS", "Taxas"}

// Charge is one billing or ledger-movement record.
type Charge struct {
	ID             int64           `json:"id"`
	MunicipalityID int64           `json:"municipio_id"`
	TaxType        string          `json:"tipo_tributo"`
	Gross          decimal.Decimal `json:"valor_bruto"`
	PSPFee         decimal.Decimal `json:"taxa_psp"`
	Status         ChargeStatus    `json:"status"`
	Method         PaymentMethod   `json:"metodo_pagamento"`
	PaidAt         *time.Time      `json:"data_pagamento"`
	CreatedAt      time.Time       `json:"criado_em"`
}

// IsWithdrawal reports whether the charge is an outbound transfer entry.
func (c Charge) IsWithdrawal() bool {
	return c.TaxType == WithdrawalTaxType || c.Gross.IsNegative()
}

// IsPaidRevenue reports whether the charge counts towards collected revenue.
func (c Charge) IsPaidRevenue() bool {
	return c.Status == StatusPaid && c.Gross.IsPositive()
}

// NewCharge is the input for charge creation.
type NewCharge struct {
	MunicipalityID int64
	TaxType        string
	Amount         decimal.Decimal
	Method         PaymentMethod
	PSPFee         decimal.Decimal
}

// ValidateNewCharge checks caller-supplied charge input before it reaches a repository.
func ValidateNewCharge(municipalityID int64, taxType string, amount decimal.Decimal, method string) (NewCharge, error) {
	if municipalityID <= 0 {
		return NewCharge{}, &ValidationError{Field: "municipio_id", Reason: "inválido"}
	}
	taxType = strings.TrimSpace(taxType)
	if taxType == "" {
		return NewCharge{}, &ValidationError{Field: "tipo_tributo", Reason: "obrigatório"}
	}
	if taxType == WithdrawalTaxType {
		return NewCharge{}, &ValidationError{Field: "tipo_tributo", Reason: "reservado para saques"}
	}
	if len([]rune(taxType)) > MaxTaxTypeLength {
		return NewCharge{}, &ValidationError{Field: "tipo_tributo", Reason: "excede 50 caracteres"}
	}
	// Amounts are stored in cents; sub-cent input rounds to zero and is rejected.
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return NewCharge{}, &ValidationError{Field: "valor", Reason: "deve ser maior que zero"}
	}
	m, ok := NormalizeMethod(method)
	if !ok {
		return NewCharge{}, &ValidationError{Field: "metodo", Reason: "meio de pagamento desconhecido"}
	}
	return NewCharge{
		MunicipalityID: municipalityID,
		TaxType:        taxType,
		Amount:         amount,
		Method:         m,
		PSPFee:         DefaultPSPFee,
	}, nil
}

// ValidateWithdrawal checks a requested withdrawal amount.
func ValidateWithdrawal(municipalityID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if municipalityID <= 0 {
		return decimal.Zero, &ValidationError{Field: "municipio_id", Reason: "inválido"}
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, &ValidationError{Field: "valor", Reason: "deve ser maior que zero"}
	}
	return amount, nil
}

// ChargeFilter narrows charge listings.
type ChargeFilter struct {
	Status ChargeStatus
}

// Match reports whether c passes the filter.
func (f ChargeFilter) Match(c Charge) bool {
	return f.Status == "" || c.Status == f.Status
}
