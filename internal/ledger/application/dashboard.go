package application

import (
	"context"

	"github.com/shopspring/decimal"

	"assat-psp/internal/auth"
	ledger "assat-psp/internal/ledger/domain"
)

// Alert levels.
const (
	AlertWarning = "warning"
	AlertSuccess = "success"
	AlertInfo    = "info"
)

// Alert is one management notice shown on the dashboard.
type Alert struct {
	Level   string `json:"nivel"`
	Message string `json:"mensagem"`
}

// Dashboard aggregates the figures an operator looks at for one municipality.
type Dashboard struct {
	Municipality ledger.Municipality        `json:"municipio"`
	Summary      ledger.AuditSummary        `json:"resumo"`
	PendingTotal decimal.Decimal            `json:"total_pendente"`
	FeeTotal     decimal.Decimal            `json:"taxas_assat"`
	DailyRate    float64                    `json:"taxa_diaria"`
	DailyYield   decimal.Decimal            `json:"rendimento_diario"`
	Alerts       []Alert                    `json:"alertas"`
	ByTaxType    map[string]decimal.Decimal `json:"por_tributo"`
	ByMethod     map[string]decimal.Decimal `json:"por_metodo"`
}

// Dashboard computes alerts, fees, yield and revenue breakdowns.
func (s *Service) Dashboard(ctx context.Context, municipalityID int64) (Dashboard, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return Dashboard{}, err
	}
	m, err := s.loadMunicipality(ctx, municipalityID)
	if err != nil {
		return Dashboard{}, err
	}
	charges, err := s.repo.ListCharges(ctx, municipalityID, ledger.ChargeFilter{})
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Municipality: *m,
		Summary:      s.auditSummary(ctx, municipalityID),
		PendingTotal: decimal.Zero,
		FeeTotal:     decimal.Zero,
		DailyRate:    s.rate.DailyRate(),
		ByTaxType:    make(map[string]decimal.Decimal),
		ByMethod:     make(map[string]decimal.Decimal),
	}
	paidRevenue := 0
	for _, c := range charges {
		if c.Status == ledger.StatusPending {
			d.PendingTotal = d.PendingTotal.Add(c.Gross)
			continue
		}
		if !c.IsPaidRevenue() {
			continue
		}
		paidRevenue++
		d.ByTaxType[c.TaxType] = d.ByTaxType[c.TaxType].Add(c.Gross)
		d.ByMethod[string(c.Method)] = d.ByMethod[string(c.Method)].Add(c.Gross)
	}
	d.FeeTotal = s.pspFee.Mul(decimal.NewFromInt(int64(paidRevenue)))
	d.DailyYield = m.Balance.Mul(decimal.NewFromFloat(d.DailyRate)).Round(2)
	d.Alerts = s.alerts(m.Balance, d.PendingTotal, d.DailyYield)
	return d, nil
}

func (s *Service) alerts(balance, pending, dailyYield decimal.Decimal) []Alert {
	var alerts []Alert
	if pending.GreaterThan(s.pendingThreshold) {
		alerts = append(alerts, Alert{
			Level:   AlertWarning,
			Message: "Atenção: " + ledger.FormatBRL(pending) + " em guias abertas.",
		})
	} else {
		alerts = append(alerts, Alert{Level: AlertSuccess, Message: "Saúde fiscal em dia."})
	}
	if balance.GreaterThan(s.capitalizationThreshold) {
		alerts = append(alerts, Alert{
			Level:   AlertInfo,
			Message: "Capitalização Ativa: O saldo atual pode render " + ledger.FormatBRL(dailyYield) + " nas próximas 24h.",
		})
	}
	return alerts
}
