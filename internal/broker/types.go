package broker

import (
	"context"

	"checkout/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, event models.Event) error
	Close() error
}

// Consumer delivers events from every subscribed topic to its handler.
// Subscribe must be called before Run. Run blocks until ctx is cancelled.
type Consumer interface {
	Subscribe(topic string, handler HandlerFunc)
	Run(ctx context.Context) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, event models.Event) error
