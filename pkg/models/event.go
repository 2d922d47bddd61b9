package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the saga status carried by an Event. It reflects the outcome of
// the most recent step, not the status of any single participant.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSuccess         Status = "SUCCESS"
	StatusRollbackPending Status = "ROLLBACK_PENDING"
	StatusFail            Status = "FAIL"

	// statusStarted is accepted on decode for envelopes produced by older initiators.
	statusStarted Status = "STARTED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusRollbackPending, StatusFail:
		return true
	}
	return false
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch st := Status(raw); st {
	case "", statusStarted:
		*s = StatusPending
	case StatusPending, StatusSuccess, StatusRollbackPending, StatusFail:
		*s = st
	default:
		return fmt.Errorf("unknown saga status %q", raw)
	}
	return nil
}

// Source identifies the component that last wrote an Event.
type Source string

const (
	SourceOrchestrator      Source = "ORCHESTRATOR"
	SourceProductValidation Source = "PRODUCT_VALIDATION_SERVICE"
	SourcePayment           Source = "PAYMENT_SERVICE"
	SourceInventory         Source = "INVENTORY_SERVICE"
)

// Event is the saga envelope. It travels by value between services and is
// the only channel of saga state between them.
type Event struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty"`
	TransactionID string    `json:"transactionId" bson:"transaction_id"`
	OrderID       string    `json:"orderId" bson:"order_id"`
	Payload       Order     `json:"payload" bson:"payload"`
	Source        Source    `json:"source,omitempty" bson:"source"`
	Status        Status    `json:"status" bson:"status"`
	EventHistory  []History `json:"eventHistory" bson:"event_history"`
	CreatedAt     time.Time `json:"createdAt,omitempty" bson:"created_at"`
}

// History is one audit entry. Entries are never modified once appended.
type History struct {
	Source    Source    `json:"source" bson:"source"`
	Status    Status    `json:"status" bson:"status"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Key identifies one saga execution.
type Key struct {
	OrderID       string
	TransactionID string
}

func (k Key) String() string {
	return k.OrderID + ":" + k.TransactionID
}

func (e *Event) Key() Key {
	return Key{OrderID: e.OrderID, TransactionID: e.TransactionID}
}

func (e *Event) LatestStatus() Status {
	return e.Status
}

// Version is the history length. It only grows, so two copies of the same
// saga can be ordered by it when a message is replayed.
func (e *Event) Version() int {
	return len(e.EventHistory)
}

// IsTerminal reports whether the orchestrator has closed the saga. Only the
// orchestrator writes a terminal envelope.
func (e *Event) IsTerminal() bool {
	return e.Source == SourceOrchestrator && (e.Status == StatusSuccess || e.Status == StatusFail)
}

// AppendHistory adds entry at the end of the log. A missing timestamp is
// stamped with the current time, and no entry is ever stamped earlier than
// its predecessor.
func (e *Event) AppendHistory(entry History) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if n := len(e.EventHistory); n > 0 {
		if last := e.EventHistory[n-1].CreatedAt; entry.CreatedAt.Before(last) {
			entry.CreatedAt = last
		}
	}
	e.EventHistory = append(e.EventHistory, entry)
}

// AddHistory records message against the current source and status.
func (e *Event) AddHistory(message string) {
	e.AppendHistory(History{
		Source:  e.Source,
		Status:  e.Status,
		Message: message,
	})
}

// Clone returns a deep copy so a published envelope cannot be mutated by the
// publisher after the fact.
func (e Event) Clone() Event {
	out := e
	out.Payload = e.Payload.Clone()
	if e.EventHistory != nil {
		out.EventHistory = make([]History, len(e.EventHistory))
		copy(out.EventHistory, e.EventHistory)
	}
	return out
}

func (e *Event) Validate() error {
	if e.OrderID == "" {
		return fmt.Errorf("orderId is required")
	}
	if e.TransactionID == "" {
		return fmt.Errorf("transactionId is required")
	}
	return nil
}
