package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/leekchan/accounting"

	"checkout/internal/config"
	"checkout/internal/constants"
	"checkout/internal/logger"
	"checkout/internal/participant"
	"checkout/pkg/errors"
	"checkout/pkg/models"
)

var messages = participant.Messages{
	Duplicate:          "Payment already exists for this order!",
	Success:            "Payment realized successfully!",
	FailPrefix:         "Fail trying to realize payment: ",
	Rollback:           "Rollback executed on payment!",
	RollbackFailPrefix: "Fail trying to refund payment: ",
}

// Service charges the order total. The payment is stored as PENDING before the
// amount is checked, so a rejected charge still leaves a record to refund.
type Service struct {
	repo          Repository
	minimumAmount float64
	money         *accounting.Accounting
	logger        logger.Logger
	now           func() time.Time
}

func NewService(repo Repository, cfg config.PaymentConfig, log logger.Logger) *Service {
	minimum := cfg.MinimumAmount
	if minimum <= 0 {
		minimum = constants.DefaultMinimumPaymentAmount
	}
	return &Service{
		repo:          repo,
		minimumAmount: minimum,
		money:         accounting.DefaultAccounting("", 2),
		logger:        log,
		now:           time.Now,
	}
}

func (s *Service) Source() models.Source {
	return models.SourcePayment
}

func (s *Service) Messages() participant.Messages {
	return messages
}

func (s *Service) Execute(ctx context.Context, event *models.Event) error {
	p := newPayment(event, StatusPending, s.now())
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	setTotals(event, p)

	if p.TotalAmount <= s.minimumAmount {
		return errors.BusinessRule(fmt.Sprintf("Amount must be greater than %s!", s.money.FormatMoney(s.minimumAmount)))
	}

	p.transition(StatusSuccess, s.now())
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}

	s.logger.InfowCtx(ctx, "Payment realized",
		"payment_id", p.ID,
		"amount", s.money.FormatMoney(p.TotalAmount),
		"items", p.TotalItems,
	)
	return nil
}

// Compensate refunds the payment, creating a refunded record when no charge
// was ever attempted for the saga instance.
func (s *Service) Compensate(ctx context.Context, event *models.Event) error {
	p, err := s.repo.FindBy(ctx, event.OrderID, event.TransactionID)
	if errors.IsNotFound(err) {
		p = newPayment(event, StatusRefunded, s.now())
		setTotals(event, p)
		return s.repo.Save(ctx, p)
	}
	if err != nil {
		return err
	}

	setTotals(event, p)
	if p.Status == StatusRefunded {
		return errors.ErrAlreadyCompensated
	}

	p.transition(StatusRefunded, s.now())
	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}

	s.logger.InfowCtx(ctx, "Payment refunded",
		"payment_id", p.ID,
		"amount", s.money.FormatMoney(p.TotalAmount),
	)
	return nil
}

func setTotals(event *models.Event, p *Payment) {
	event.Payload.TotalAmount = p.TotalAmount
	event.Payload.TotalItems = p.TotalItems
}
