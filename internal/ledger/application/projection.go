package application

import (
	"context"
	"strconv"
	"time"

	"assat-psp/internal/auth"
	ledger "assat-psp/internal/ledger/domain"
	"assat-psp/internal/observability/metrics"
	"assat-psp/internal/projection"
)

// ProjectionPoint is one dated value of a projection series.
type ProjectionPoint struct {
	Offset int       `json:"offset"`
	Date   time.Time `json:"data"`
	Value  float64   `json:"valor"`
}

// Projection is the capitalization simulation for a balance.
type Projection struct {
	MunicipalityID int64             `json:"municipio_id,omitempty"`
	Balance        float64           `json:"saldo_atual"`
	Days           int               `json:"dias"`
	AnnualRate     float64           `json:"taxa_anual"`
	DailyRate      float64           `json:"taxa_diaria"`
	FinalValue     float64           `json:"projecao_final"`
	Gain           float64           `json:"ganho_estimado"`
	Series         []ProjectionPoint `json:"serie"`
}

// ValidateHorizon rejects negative horizons and horizons above maxDays.
func ValidateHorizon(days, maxDays int) error {
	if days < 0 {
		return &ledger.ValidationError{Field: "dias", Reason: "não pode ser negativo"}
	}
	if maxDays > 0 && days > maxDays {
		return &ledger.ValidationError{Field: "dias", Reason: "excede " + strconv.Itoa(maxDays)}
	}
	return nil
}

// ProjectBalance simulates growth of an arbitrary balance from now.
func ProjectBalance(rate projection.Rate, balance float64, days int, now time.Time) Projection {
	points := rate.Series(balance, days)
	series := make([]ProjectionPoint, 0, len(points))
	for _, p := range points {
		series = append(series, ProjectionPoint{
			Offset: p.Offset,
			Date:   now.AddDate(0, 0, p.Offset),
			Value:  p.Value,
		})
	}
	return Projection{
		Balance:    balance,
		Days:       days,
		AnnualRate: rate.Annual,
		DailyRate:  rate.DailyRate(),
		FinalValue: rate.Project(balance, days),
		Gain:       rate.Gain(balance, days),
		Series:     series,
	}
}

// Project simulates growth of the municipality's current balance.
func (s *Service) Project(ctx context.Context, municipalityID int64, days int) (Projection, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return Projection{}, err
	}
	if err := ValidateHorizon(days, s.maxDays); err != nil {
		return Projection{}, err
	}
	m, err := s.loadMunicipality(ctx, municipalityID)
	if err != nil {
		return Projection{}, err
	}
	metrics.IncProjection()

	balance, _ := m.Balance.Float64()
	p := ProjectBalance(s.rate, balance, days, s.clock.Now().UTC())
	p.MunicipalityID = m.ID
	return p, nil
}

// MaxProjectionDays returns the largest accepted horizon.
func (s *Service) MaxProjectionDays() int {
	return s.maxDays
}
