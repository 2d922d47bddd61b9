// Package participant holds the contract every saga step implements and the
// handler that turns a step into bus subscriptions.
package participant

import (
	"context"

	"checkout/pkg/models"
)

// Messages are the history texts a participant writes.
type Messages struct {
	Duplicate          string
	Success            string
	FailPrefix         string
	Rollback           string
	RollbackFailPrefix string
}

// Participant is one local transaction of the saga and its compensation.
// Execute validates the envelope and runs the local transaction, writing any
// derived values into event.Payload. Compensate finds or creates the local
// record in its compensated state and never deletes it. Both report business
// outcomes through pkg/errors kinds; the Handler turns them into statuses.
type Participant interface {
	Source() models.Source
	Messages() Messages
	Execute(ctx context.Context, event *models.Event) error
	Compensate(ctx context.Context, event *models.Event) error
}

// Publisher is the subset of the broker the handler needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event models.Event) error
}
