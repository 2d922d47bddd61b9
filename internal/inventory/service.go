package inventory

import (
	"context"
	"time"

	"checkout/internal/logger"
	"checkout/internal/participant"
	"checkout/pkg/errors"
	"checkout/pkg/models"
)

var messages = participant.Messages{
	Duplicate:          "There's another inventory update in progress for this order.",
	Success:            "Inventory updated successfully!",
	FailPrefix:         "Fail to update inventory: ",
	Rollback:           "Rollback executed for inventory!",
	RollbackFailPrefix: "Fail to rollback inventory: ",
}

// Service reserves stock for every ordered product.
type Service struct {
	repo   Repository
	logger logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}
}

func (s *Service) Source() models.Source {
	return models.SourceInventory
}

func (s *Service) Messages() participant.Messages {
	return messages
}

func (s *Service) Execute(ctx context.Context, event *models.Event) error {
	if err := s.checkStock(ctx, event.Payload); err != nil {
		return err
	}

	res := newReservation(event, StatusPending, s.now())
	if err := s.repo.Save(ctx, res); err != nil {
		return err
	}

	if err := s.repo.Apply(ctx, res, s.now()); err != nil {
		return err
	}

	s.logger.InfowCtx(ctx, "Inventory reserved",
		"reservation_id", res.ID,
		"items", len(res.Items),
	)
	return nil
}

func (s *Service) checkStock(ctx context.Context, order models.Order) error {
	if len(order.Products) == 0 {
		return errors.BusinessRule("Product list is empty!")
	}

	for _, p := range order.Products {
		if p.Product.Code == "" {
			return errors.BusinessRule("Product must be informed!")
		}
		if p.Quantity <= 0 {
			return errors.BusinessRule("Product quantity must be greater than zero!")
		}

		stock, err := s.repo.FindStock(ctx, p.Product.Code)
		if errors.IsNotFound(err) {
			return errors.BusinessRule(errors.Message(err))
		}
		if err != nil {
			return err
		}
		if p.Quantity > stock.Available {
			return outOfStock(p.Product.Code)
		}
	}
	return nil
}

// Compensate puts reserved stock back. A reservation that never got stock is
// only marked compensated, and a missing one is created compensated.
func (s *Service) Compensate(ctx context.Context, event *models.Event) error {
	res, err := s.repo.FindBy(ctx, event.OrderID, event.TransactionID)
	if errors.IsNotFound(err) {
		return s.repo.Save(ctx, newReservation(event, StatusCompensated, s.now()))
	}
	if err != nil {
		return err
	}

	switch res.Status {
	case StatusCompensated:
		return errors.ErrAlreadyCompensated
	case StatusSuccess:
		if err := s.repo.Restore(ctx, res, s.now()); err != nil {
			return err
		}
		s.logger.InfowCtx(ctx, "Inventory restored", "reservation_id", res.ID)
		return nil
	default:
		res.Status = StatusCompensated
		res.UpdatedAt = s.now()
		return s.repo.Save(ctx, res)
	}
}
