package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"checkout/internal/broker"
	"checkout/internal/constants"
	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/logging"
	"checkout/pkg/models"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event models.Event) error
}

// Service is the saga initiator. It stores orders and the events that start
// and end each saga.
type Service struct {
	repo       Repository
	publisher  Publisher
	startTopic string
	logger     logger.Logger
	now        func() time.Time
	newID      func() string
}

func NewService(repo Repository, publisher Publisher, startTopic string, log logger.Logger) *Service {
	return &Service{
		repo:       repo,
		publisher:  publisher,
		startTopic: startTopic,
		logger:     log,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Register consumes terminal envelopes from the orchestrator.
func (s *Service) Register(consumer broker.Consumer, notifyTopic string) {
	consumer.Subscribe(notifyTopic, s.OnSagaTerminal)
}

// CreateOrder persists the order and its first event, then starts the saga.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	now := s.now()
	o := &models.Order{
		ID:            s.newID(),
		Products:      req.Products,
		CreatedAt:     now,
		TransactionID: fmt.Sprintf("%d%s%s", now.UnixMilli(), constants.TransactionIDSeparator, s.newID()),
	}
	if err := s.repo.SaveOrder(ctx, o); err != nil {
		return nil, err
	}

	event := models.Event{
		ID:            s.newID(),
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		Payload:       o.Clone(),
		Status:        models.StatusPending,
		EventHistory:  []models.History{},
		CreatedAt:     now,
	}
	if err := s.repo.SaveEvent(ctx, &event); err != nil {
		return nil, err
	}

	ctx = logging.WithSaga(ctx, o.ID, o.TransactionID)
	if err := s.publisher.Publish(ctx, s.startTopic, event); err != nil {
		return nil, err
	}

	s.logger.InfowCtx(ctx, "Order created, saga started", "products", len(o.Products))
	return o, nil
}

// OnSagaTerminal stores the final envelope of a saga in place of its first
// event.
func (s *Service) OnSagaTerminal(ctx context.Context, event models.Event) error {
	if event.ID == "" {
		event.ID = s.newID()
	}
	event.CreatedAt = s.now()
	if err := s.repo.SaveEvent(ctx, &event); err != nil {
		return err
	}

	s.logger.InfowCtx(ctx, "Order notified of saga end",
		"status", event.Status,
		"steps", event.Version(),
	)
	return nil
}

func (s *Service) FindByFilters(ctx context.Context, filters EventFilters) (*models.Event, error) {
	if filters.IsEmpty() {
		return nil, errors.ErrValidation.WithDetail("message", "Order ID or Transaction ID must be informed")
	}

	event, err := s.repo.FindLatestEvent(ctx, filters)
	if err != nil {
		return nil, err
	}
	if event == nil {
		msg := "Event not found by Transaction ID"
		if filters.OrderID != "" {
			msg = "Event not found by Order ID"
		}
		return nil, errors.ErrNotFound.WithDetail("message", msg)
	}
	return event, nil
}

// FindAll lists events newest first.
func (s *Service) FindAll(ctx context.Context) ([]models.Event, error) {
	return s.repo.ListEvents(ctx, constants.DefaultHistoryPageLimit)
}
