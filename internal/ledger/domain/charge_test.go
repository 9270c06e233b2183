package ledger

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNewCharge(t *testing.T) {
	c, err := ValidateNewCharge(1, "  IPTU ", decimal.RequireFromString("150.456"), "")
	require.NoError(t, err)
	assert.Equal(t, "IPTU", c.TaxType)
	assert.Equal(t, MethodPix, c.Method)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("150.46")))
	assert.True(t, c.PSPFee.Equal(DefaultPSPFee))

	cases := []struct {
		name    string
		id      int64
		taxType string
		amount  string
		method  string
		field   string
	}{
		{"bad municipality", 0, "IPTU", "10", "Pix", "municipio_id"},
		{"empty tax type", 1, "  ", "10", "Pix", "tipo_tributo"},
		{"reserved tax type", 1, WithdrawalTaxType, "10", "Pix", "tipo_tributo"},
		{"long tax type", 1, strings.Repeat("x", 51), "10", "Pix", "tipo_tributo"},
		{"zero amount", 1, "ISS", "0", "Pix", "valor"},
		{"negative amount", 1, "ISS", "-5", "Pix", "valor"},
		{"sub-cent amount", 1, "ISS", "0.004", "Pix", "valor"},
		{"transfer method", 1, "ISS", "5", "TED/PIX", "metodo"},
		{"unknown method", 1, "ISS", "5", "Cheque", "metodo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateNewCharge(tc.id, tc.taxType, decimal.RequireFromString(tc.amount), tc.method)
			require.Error(t, err)
			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tc.field, v.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidateWithdrawal(t *testing.T) {
	amount, err := ValidateWithdrawal(1, decimal.RequireFromString("40"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(40)))

	_, err = ValidateWithdrawal(1, decimal.Zero)
	assert.True(t, IsValidation(err))
	_, err = ValidateWithdrawal(1, decimal.NewFromInt(-1))
	assert.True(t, IsValidation(err))
	_, err = ValidateWithdrawal(1, decimal.RequireFromString("0.001"))
	assert.True(t, IsValidation(err))

	amount, err = ValidateWithdrawal(1, decimal.RequireFromString("0.005"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.01")))
}

func TestNewMunicipality(t *testing.T) {
	m, err := NewMunicipality(" Cidade X ", "00.000.000/0001-00")
	require.NoError(t, err)
	assert.Equal(t, "Cidade X", m.Name)
	assert.True(t, m.Balance.IsZero())

	_, err = NewMunicipality("", "1")
	assert.True(t, IsValidation(err))
	_, err = NewMunicipality("X", "")
	assert.True(t, IsValidation(err))
	_, err = NewMunicipality("X", strings.Repeat("9", 19))
	assert.True(t, IsValidation(err))
}

func TestSummarizeExcludesWithdrawals(t *testing.T) {
	charges := []Charge{
		{Status: StatusPaid, Gross: decimal.NewFromInt(100)},
		{Status: StatusPending, Gross: decimal.NewFromInt(50)},
		{Status: StatusPaid, Gross: decimal.NewFromInt(-40), TaxType: WithdrawalTaxType},
	}
	s := Summarize(charges)
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(2), s.Paid)
	assert.Equal(t, int64(1), s.Pending)
	assert.True(t, s.TotalPaidGross.Equal(decimal.NewFromInt(100)))

	empty := Summarize(nil)
	assert.Zero(t, empty.Total)
	assert.True(t, empty.TotalPaidGross.IsZero())
}

func TestChargeClassification(t *testing.T) {
	w := Charge{TaxType: WithdrawalTaxType, Gross: decimal.NewFromInt(-1), Status: StatusPaid}
	assert.True(t, w.IsWithdrawal())
	assert.False(t, w.IsPaidRevenue())

	c := Charge{TaxType: "IPTU", Gross: decimal.NewFromInt(1), Status: StatusPaid}
	assert.False(t, c.IsWithdrawal())
	assert.True(t, c.IsPaidRevenue())
}

func TestBalanceCheck(t *testing.T) {
	charges := []Charge{
		{Status: StatusPaid, Gross: decimal.NewFromInt(100)},
		{Status: StatusPending, Gross: decimal.NewFromInt(50)},
		{Status: StatusPaid, Gross: decimal.NewFromInt(-40)},
	}
	total := LedgerTotal(charges)
	assert.True(t, total.Equal(decimal.NewFromInt(60)))

	ok := BalanceCheck{Balance: decimal.NewFromInt(60), LedgerTotal: total}
	assert.True(t, ok.Consistent())

	drifted := BalanceCheck{Balance: decimal.NewFromInt(70), LedgerTotal: total}
	assert.False(t, drifted.Consistent())
	assert.True(t, drifted.Drift().Equal(decimal.NewFromInt(10)))
}
