package application

import (
	"context"

	"assat-psp/internal/auth"
	ledger "assat-psp/internal/ledger/domain"
)

// Reconcile compares every custody balance with the sum of its paid entries.
// It returns all checks and the subset that drifted.
func (s *Service) Reconcile(ctx context.Context) ([]ledger.BalanceCheck, []ledger.BalanceCheck, error) {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return nil, nil, err
	}
	checks, err := s.repo.CheckBalances(ctx)
	if err != nil {
		return nil, nil, err
	}
	var drifted []ledger.BalanceCheck
	for _, c := range checks {
		if !c.Consistent() {
			s.logger.Printf("ledger: balance drift municipality=%d balance=%s ledger=%s", c.MunicipalityID, c.Balance.StringFixed(2), c.LedgerTotal.StringFixed(2))
			drifted = append(drifted, c)
		}
	}
	return checks, drifted, nil
}
