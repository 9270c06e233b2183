package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	ledger "assat-psp/internal/ledger/domain"
)

// LedgerRepository is an in-memory ledger for demo/testing.
// A single mutex makes every mutation atomic with respect to the others.
type LedgerRepository struct {
	mu             sync.RWMutex
	now            func() time.Time
	nextMunicipal  int64
	nextCharge     int64
	municipalities map[int64]*ledger.Municipality
	byCNPJ         map[string]int64
	charges        map[int64]*ledger.Charge
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		now:            time.Now,
		municipalities: make(map[int64]*ledger.Municipality),
		byCNPJ:         make(map[string]int64),
		charges:        make(map[int64]*ledger.Charge),
	}
}

// WithClock overrides the timestamp source.
func (r *LedgerRepository) WithClock(now func() time.Time) *LedgerRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// RegisterMunicipality stores a municipality with a zero balance; duplicate CNPJs are ignored.
func (r *LedgerRepository) RegisterMunicipality(ctx context.Context, m ledger.Municipality) (int64, bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCNPJ[m.CNPJ]; ok {
		return 0, false, nil
	}
	r.nextMunicipal++
	id := r.nextMunicipal
	r.municipalities[id] = &ledger.Municipality{
		ID:        id,
		Name:      m.Name,
		CNPJ:      m.CNPJ,
		Balance:   decimal.Zero,
		CreatedAt: r.now().UTC(),
	}
	r.byCNPJ[m.CNPJ] = id
	return id, true, nil
}

// ListMunicipalities returns municipalities ordered by name.
func (r *LedgerRepository) ListMunicipalities(ctx context.Context) ([]ledger.Municipality, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ledger.Municipality, 0, len(r.municipalities))
	for _, m := range r.municipalities {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// GetMunicipality returns a copy of the municipality or nil.
func (r *LedgerRepository) GetMunicipality(ctx context.Context, id int64) (*ledger.Municipality, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.municipalities[id]
	if m == nil {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}

// CreateCharge stores a pending charge.
func (r *LedgerRepository) CreateCharge(ctx context.Context, c ledger.NewCharge) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.municipalities[c.MunicipalityID] == nil {
		return 0, ledger.ErrMunicipalityNotFound
	}
	fee := c.PSPFee
	if fee.IsZero() {
		fee = ledger.DefaultPSPFee
	}
	method := c.Method
	if method == "" {
		method = ledger.MethodPix
	}
	r.nextCharge++
	id := r.nextCharge
	r.charges[id] = &ledger.Charge{
		ID:             id,
		MunicipalityID: c.MunicipalityID,
		TaxType:        c.TaxType,
		Gross:          c.Amount,
		PSPFee:         fee,
		Status:         ledger.StatusPending,
		Method:         method,
		CreatedAt:      r.now().UTC(),
	}
	return id, nil
}

// SettleCharge flips a pending charge to paid and credits the balance.
func (r *LedgerRepository) SettleCharge(ctx context.Context, chargeID int64) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.charges[chargeID]
	if c == nil || c.Status != ledger.StatusPending {
		return false, nil
	}
	m := r.municipalities[c.MunicipalityID]
	if m == nil {
		return false, ledger.ErrMunicipalityNotFound
	}
	paidAt := r.now().UTC()
	c.Status = ledger.StatusPaid
	c.PaidAt = &paidAt
	m.Balance = m.Balance.Add(c.Gross)
	return true, nil
}

// Withdraw debits the balance and records the transfer entry.
func (r *LedgerRepository) Withdraw(ctx context.Context, municipalityID int64, amount decimal.Decimal) (ledger.WithdrawResult, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.municipalities[municipalityID]
	if m == nil {
		return ledger.WithdrawResult{}, ledger.ErrMunicipalityNotFound
	}
	if !m.CanWithdraw(amount) {
		return ledger.WithdrawResult{OK: false, Message: ledger.MessageInsufficientBalance}, nil
	}
	now := r.now().UTC()
	r.nextCharge++
	id := r.nextCharge
	r.charges[id] = &ledger.Charge{
		ID:             id,
		MunicipalityID: municipalityID,
		TaxType:        ledger.WithdrawalTaxType,
		Gross:          amount.Neg(),
		PSPFee:         decimal.Zero,
		Status:         ledger.StatusPaid,
		Method:         ledger.MethodTransfer,
		PaidAt:         &now,
		CreatedAt:      now,
	}
	m.Balance = m.Balance.Sub(amount)
	return ledger.WithdrawResult{OK: true, Message: ledger.MessageWithdrawOK, ChargeID: id}, nil
}

// ListCharges returns copies of a municipality's charges ordered by id.
func (r *LedgerRepository) ListCharges(ctx context.Context, municipalityID int64, filter ledger.ChargeFilter) ([]ledger.Charge, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []ledger.Charge
	for _, c := range r.charges {
		if c.MunicipalityID != municipalityID || !filter.Match(*c) {
			continue
		}
		clone := *c
		if c.PaidAt != nil {
			t := *c.PaidAt
			clone.PaidAt = &t
		}
		result = append(result, clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AuditSummary summarizes a municipality's charges.
func (r *LedgerRepository) AuditSummary(ctx context.Context, municipalityID int64) (ledger.AuditSummary, error) {
	charges, err := r.ListCharges(ctx, municipalityID, ledger.ChargeFilter{})
	if err != nil {
		return ledger.AuditSummary{}, err
	}
	return ledger.Summarize(charges), nil
}

// CheckBalances compares every stored balance with the sum of its paid entries.
func (r *LedgerRepository) CheckBalances(ctx context.Context) ([]ledger.BalanceCheck, error) {
	list, err := r.ListMunicipalities(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	result := make([]ledger.BalanceCheck, 0, len(list))
	for _, m := range list {
		charges, err := r.ListCharges(ctx, m.ID, ledger.ChargeFilter{Status: ledger.StatusPaid})
		if err != nil {
			return nil, err
		}
		result = append(result, ledger.BalanceCheck{
			MunicipalityID: m.ID,
			Name:           m.Name,
			Balance:        m.Balance,
			LedgerTotal:    ledger.LedgerTotal(charges),
		})
	}
	return result, nil
}

var _ ledger.Repository = (*LedgerRepository)(nil)
