package productvalidation

import (
	"context"
	"time"

	"checkout/internal/logger"
	"checkout/internal/participant"
	"checkout/pkg/errors"
	"checkout/pkg/models"
)

var messages = participant.Messages{
	Duplicate:          "There's another validation in progress for this order.",
	Success:            "Products validated successfully!",
	FailPrefix:         "Fail to validate products: ",
	Rollback:           "Rollback executed on product validation!",
	RollbackFailPrefix: "Fail to rollback product validation: ",
}

// Service checks that every ordered product exists in the catalog.
type Service struct {
	repo    Repository
	catalog Catalog
	logger  logger.Logger
	now     func() time.Time
}

func NewService(repo Repository, catalog Catalog, log logger.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		logger:  log,
		now:     time.Now,
	}
}

func (s *Service) Source() models.Source {
	return models.SourceProductValidation
}

func (s *Service) Messages() participant.Messages {
	return messages
}

func (s *Service) Execute(ctx context.Context, event *models.Event) error {
	if err := s.validateProducts(ctx, event.Payload); err != nil {
		return err
	}

	v := newValidation(event, StatusPending, s.now())
	if err := s.repo.Save(ctx, v); err != nil {
		return err
	}

	v.transition(StatusSuccess, s.now())
	if err := s.repo.Save(ctx, v); err != nil {
		return err
	}

	s.logger.DebugwCtx(ctx, "Validation recorded", "validation_id", v.ID)
	return nil
}

func (s *Service) validateProducts(ctx context.Context, order models.Order) error {
	if len(order.Products) == 0 {
		return errors.BusinessRule("Product list is empty!")
	}

	for _, p := range order.Products {
		if p.Product.Code == "" {
			return errors.BusinessRule("Product must be informed!")
		}
		exists, err := s.catalog.ExistsByCode(ctx, p.Product.Code)
		if err != nil {
			return err
		}
		if !exists {
			return errors.BusinessRule("Product does not exist in database!")
		}
	}
	return nil
}

// Compensate marks the validation as compensated, creating it when this step
// never ran for the saga instance.
func (s *Service) Compensate(ctx context.Context, event *models.Event) error {
	v, err := s.repo.FindBy(ctx, event.OrderID, event.TransactionID)
	if errors.IsNotFound(err) {
		return s.repo.Save(ctx, newValidation(event, StatusCompensated, s.now()))
	}
	if err != nil {
		return err
	}

	if v.Status == StatusCompensated {
		return errors.ErrAlreadyCompensated
	}

	v.transition(StatusCompensated, s.now())
	return s.repo.Save(ctx, v)
}
