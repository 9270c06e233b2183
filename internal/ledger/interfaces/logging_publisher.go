package interfaces

import (
	"context"
	"errors"
	"log"

	"assat-psp/internal/ledger/application"
)

// LoggingPublisher logs ledger events.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishChargeSettled logs the event.
func (p *LoggingPublisher) PublishChargeSettled(ctx context.Context, event application.ChargeSettled) error {
	_ = ctx
	if p == nil {
		return errors.New("ledger publisher: nil publisher")
	}
	p.logger.Printf("charge settled: charge=%d by=%s at=%s", event.ChargeID, event.SettledBy, event.OccurredAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

// PublishWithdrawn logs the event.
func (p *LoggingPublisher) PublishWithdrawn(ctx context.Context, event application.Withdrawn) error {
	_ = ctx
	if p == nil {
		return errors.New("ledger publisher: nil publisher")
	}
	p.logger.Printf("withdrawn: municipality=%d charge=%d amount=%s by=%s", event.MunicipalityID, event.ChargeID, event.Amount.StringFixed(2), event.RequestedBy)
	return nil
}
