package application

import (
	"context"
	"time"

	"assat-psp/internal/auth"
	ledger "assat-psp/internal/ledger/domain"
)

// Report is the data behind the PDF, CSV and XLSX exports.
type Report struct {
	Municipality ledger.Municipality
	Summary      ledger.AuditSummary
	Paid         []ledger.Charge
	GeneratedAt  time.Time
}

// Report snapshots the paid charges and audit summary of a municipality.
// Withdrawal entries are paid, so they are part of the snapshot.
func (s *Service) Report(ctx context.Context, municipalityID int64) (Report, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return Report{}, err
	}
	m, err := s.loadMunicipality(ctx, municipalityID)
	if err != nil {
		return Report{}, err
	}
	paid, err := s.repo.ListCharges(ctx, municipalityID, ledger.ChargeFilter{Status: ledger.StatusPaid})
	if err != nil {
		return Report{}, err
	}
	return Report{
		Municipality: *m,
		Summary:      s.auditSummary(ctx, municipalityID),
		Paid:         paid,
		GeneratedAt:  s.clock.Now(),
	}, nil
}
