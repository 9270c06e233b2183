package ledger

import "errors"

var (
	// ErrMunicipalityNotFound is returned when a municipality id is unknown.
	ErrMunicipalityNotFound = errors.New("ledger: municipality not found")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the custody balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// User-facing outcome messages.
const (
	MessageWithdrawOK           = "Saque realizado!"
	MessageInsufficientBalance  = "Saldo insuficiente."
	MessageChargeNotSettled     = "Guia não encontrada ou já paga."
	MessageMunicipalityNotFound = "Município não encontrado."
)

// ValidationError reports caller input rejected before reaching the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "ledger: invalid " + e.Field + ": " + e.Reason
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
