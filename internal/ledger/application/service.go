package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"assat-psp/internal/auth"
	ledger "assat-psp/internal/ledger/domain"
	"assat-psp/internal/observability/metrics"
	"assat-psp/internal/projection"
)

const defaultMaxProjectionDays = 3650

// ChargeSettled is emitted after a charge is settled and its balance credited.
type ChargeSettled struct {
	ChargeID   int64
	SettledBy  string
	OccurredAt time.Time
}

// Withdrawn is emitted after a successful withdrawal.
type Withdrawn struct {
	MunicipalityID int64
	ChargeID       int64
	Amount         decimal.Decimal
	RequestedBy    string
	OccurredAt     time.Time
}

// EventPublisher emits ledger events.
type EventPublisher interface {
	PublishChargeSettled(ctx context.Context, event ChargeSettled) error
	PublishWithdrawn(ctx context.Context, event Withdrawn) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Service exposes the ledger use cases behind an explicit auth context.
type Service struct {
	repo      ledger.Repository
	publisher EventPublisher
	clock     Clock
	logger    *log.Logger

	pspFee                  decimal.Decimal
	rate                    projection.Rate
	maxDays                 int
	pendingThreshold        decimal.Decimal
	capitalizationThreshold decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithClock sets the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPSPFee sets the fee recorded on new charges. Non-positive values keep the default.
func WithPSPFee(fee decimal.Decimal) Option {
	return func(s *Service) {
		if fee.IsPositive() {
			s.pspFee = fee
		}
	}
}

// WithProjection sets the projection rate and the largest accepted horizon.
func WithProjection(rate projection.Rate, maxDays int) Option {
	return func(s *Service) {
		s.rate = rate
		if maxDays > 0 {
			s.maxDays = maxDays
		}
	}
}

// WithAlertThresholds sets the dashboard alert thresholds.
func WithAlertThresholds(pending, capitalization decimal.Decimal) Option {
	return func(s *Service) {
		s.pendingThreshold = pending
		s.capitalizationThreshold = capitalization
	}
}

// NewService constructs the ledger service.
func NewService(repo ledger.Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("ledger service: nil repository")
	}
	s := &Service{
		repo:                    repo,
		clock:                   SystemClock{},
		logger:                  log.Default(),
		pspFee:                  ledger.DefaultPSPFee,
		rate:                    projection.DefaultRate(),
		maxDays:                 defaultMaxProjectionDays,
		pendingThreshold:        decimal.NewFromInt(1000),
		capitalizationThreshold: decimal.NewFromInt(5000),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// RegisterMunicipality creates a municipality. A known CNPJ returns created=false.
func (s *Service) RegisterMunicipality(ctx context.Context, name, cnpj string) (int64, bool, error) {
	if err := auth.Require(ctx, auth.RoleAdmin); err != nil {
		return 0, false, err
	}
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() { metrics.ObserveLedgerOp("register", result, time.Since(start)) }()

	m, err := ledger.NewMunicipality(name, cnpj)
	if err != nil {
		result = metrics.ResultRejected
		return 0, false, err
	}
	id, created, err := s.repo.RegisterMunicipality(ctx, m)
	if err != nil {
		result = metrics.ResultError
		s.logger.Printf("ledger: register municipality cnpj=%s error: %v", m.CNPJ, err)
		return 0, false, err
	}
	if !created {
		result = metrics.ResultRejected
		s.logger.Printf("ledger: municipality cnpj=%s already registered", m.CNPJ)
		return 0, false, nil
	}
	s.logger.Printf("ledger: municipality registered id=%d by=%s", id, auth.SubjectFromContext(ctx))
	return id, true, nil
}

// ListMunicipalities returns every municipality with its balance.
func (s *Service) ListMunicipalities(ctx context.Context) ([]ledger.Municipality, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return nil, err
	}
	return s.repo.ListMunicipalities(ctx)
}

// GetMunicipality returns one municipality or ErrMunicipalityNotFound.
func (s *Service) GetMunicipality(ctx context.Context, id int64) (*ledger.Municipality, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return nil, err
	}
	return s.loadMunicipality(ctx, id)
}

func (s *Service) loadMunicipality(ctx context.Context, id int64) (*ledger.Municipality, error) {
	if id <= 0 {
		return nil, ledger.ErrMunicipalityNotFound
	}
	m, err := s.repo.GetMunicipality(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ledger.ErrMunicipalityNotFound
	}
	return m, nil
}

// CreateCharge issues a pending charge for a municipality.
func (s *Service) CreateCharge(ctx context.Context, municipalityID int64, taxType string, amount decimal.Decimal, method string) (int64, error) {
	if err := auth.Require(ctx, auth.RoleOperator); err != nil {
		return 0, err
	}
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() { metrics.ObserveLedgerOp("create_charge", result, time.Since(start)) }()

	input, err := ledger.ValidateNewCharge(municipalityID, taxType, amount, method)
	if err != nil {
		result = metrics.ResultRejected
		return 0, err
	}
	input.PSPFee = s.pspFee
	if _, err := s.loadMunicipality(ctx, municipalityID); err != nil {
		result = metrics.ResultRejected
		return 0, err
	}
	id, err := s.repo.CreateCharge(ctx, input)
	if err != nil {
		result = metrics.ResultError
		s.logger.Printf("ledger: create charge municipality=%d error: %v", municipalityID, err)
		return 0, err
	}
	s.logger.Printf("ledger: charge created id=%d municipality=%d tax=%s amount=%s", id, municipalityID, input.TaxType, input.Amount.StringFixed(2))
	return id, nil
}

// SettleCharge confirms payment of a pending charge. False means missing or already paid.
func (s *Service) SettleCharge(ctx context.Context, chargeID int64) (bool, error) {
	if err := auth.Require(ctx, auth.RoleOperator); err != nil {
		return false, err
	}
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() { metrics.ObserveLedgerOp("settle", result, time.Since(start)) }()

	if chargeID <= 0 {
		result = metrics.ResultRejected
		return false, nil
	}
	ok, err := s.repo.SettleCharge(ctx, chargeID)
	if err != nil {
		result = metrics.ResultError
		s.logger.Printf("ledger: settle charge=%d error: %v", chargeID, err)
		return false, err
	}
	if !ok {
		result = metrics.ResultRejected
		return false, nil
	}

	subject := auth.SubjectFromContext(ctx)
	s.logger.Printf("ledger: charge settled id=%d by=%s", chargeID, subject)
	if s.publisher != nil {
		if err := s.publisher.PublishChargeSettled(ctx, ChargeSettled{
			ChargeID:   chargeID,
			SettledBy:  subject,
			OccurredAt: s.clock.Now().UTC(),
		}); err != nil {
			s.logger.Printf("ledger: publish settled charge=%d error: %v", chargeID, err)
		}
	}
	return true, nil
}

// Withdraw moves amount out of custody when the balance covers it.
func (s *Service) Withdraw(ctx context.Context, municipalityID int64, amount decimal.Decimal) (ledger.WithdrawResult, error) {
	if err := auth.Require(ctx, auth.RoleOperator); err != nil {
		return ledger.WithdrawResult{}, err
	}
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() { metrics.ObserveLedgerOp("withdraw", result, time.Since(start)) }()

	amount, err := ledger.ValidateWithdrawal(municipalityID, amount)
	if err != nil {
		result = metrics.ResultRejected
		return ledger.WithdrawResult{}, err
	}
	res, err := s.repo.Withdraw(ctx, municipalityID, amount)
	if err != nil {
		if errors.Is(err, ledger.ErrMunicipalityNotFound) {
			result = metrics.ResultRejected
		} else {
			result = metrics.ResultError
			s.logger.Printf("ledger: withdraw municipality=%d error: %v", municipalityID, err)
		}
		return ledger.WithdrawResult{}, err
	}
	if !res.OK {
		result = metrics.ResultRejected
		s.logger.Printf("ledger: withdraw municipality=%d amount=%s rejected: %s", municipalityID, amount.StringFixed(2), res.Message)
		return res, nil
	}

	subject := auth.SubjectFromContext(ctx)
	s.logger.Printf("ledger: withdraw municipality=%d amount=%s by=%s", municipalityID, amount.StringFixed(2), subject)
	if s.publisher != nil {
		if err := s.publisher.PublishWithdrawn(ctx, Withdrawn{
			MunicipalityID: municipalityID,
			ChargeID:       res.ChargeID,
			Amount:         amount,
			RequestedBy:    subject,
			OccurredAt:     s.clock.Now().UTC(),
		}); err != nil {
			s.logger.Printf("ledger: publish withdrawn municipality=%d error: %v", municipalityID, err)
		}
	}
	return res, nil
}

// ListCharges returns the municipality's charges ordered by id.
func (s *Service) ListCharges(ctx context.Context, municipalityID int64, filter ledger.ChargeFilter) ([]ledger.Charge, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return nil, err
	}
	if _, err := s.loadMunicipality(ctx, municipalityID); err != nil {
		return nil, err
	}
	return s.repo.ListCharges(ctx, municipalityID, filter)
}

// AuditSummary returns the charge counts and paid total. Store failures degrade to zeros;
// the returned error only reports a missing or insufficient identity.
func (s *Service) AuditSummary(ctx context.Context, municipalityID int64) (ledger.AuditSummary, error) {
	if err := auth.Require(ctx, auth.RoleViewer); err != nil {
		return ledger.AuditSummary{}, err
	}
	return s.auditSummary(ctx, municipalityID), nil
}

func (s *Service) auditSummary(ctx context.Context, municipalityID int64) ledger.AuditSummary {
	summary, err := s.repo.AuditSummary(ctx, municipalityID)
	if err != nil {
		s.logger.Printf("ledger: audit summary municipality=%d error: %v", municipalityID, err)
		return ledger.AuditSummary{TotalPaidGross: decimal.Zero}
	}
	return summary
}
