package saga

import (
	"fmt"

	"checkout/pkg/models"
)

type Action string

const (
	ActionForward    Action = "forward"
	ActionCompensate Action = "compensate"
	ActionFinish     Action = "finish"
)

// Decision is the next hop for an envelope. Topic is empty for ActionFinish,
// Status is only set for ActionFinish.
type Decision struct {
	Action Action
	Topic  string
	Step   models.Source
	Status models.Status
}

// Router derives the next hop from the envelope's source and status alone.
//
//	(ORCHESTRATOR, PENDING)        forward to the first step
//	(step i, SUCCESS), i < last    forward to step i+1
//	(step last, SUCCESS)           finish SUCCESS
//	(step i, ROLLBACK_PENDING)     compensate step i
//	(step i, FAIL), i > first      compensate step i-1
//	(step first, FAIL)             finish FAIL
//
// A step that failed forward compensates itself first, so unwinding a failure
// at C publishes compensations for C, B and A in that order.
type Router struct {
	pipeline *Pipeline
}

func NewRouter(p *Pipeline) *Router {
	return &Router{pipeline: p}
}

func (r *Router) Route(event models.Event) (Decision, error) {
	if event.Source == models.SourceOrchestrator {
		if event.Status != models.StatusPending {
			return Decision{}, fmt.Errorf("orchestrator envelope with status %s cannot be routed", event.Status)
		}
		first := r.pipeline.steps[0]
		return Decision{Action: ActionForward, Topic: first.Topics.Forward, Step: first.Source}, nil
	}

	i, ok := r.pipeline.position(event.Source)
	if !ok {
		return Decision{}, fmt.Errorf("unknown source %q", event.Source)
	}
	last := r.pipeline.Len() - 1

	switch event.Status {
	case models.StatusSuccess:
		if i == last {
			return Decision{Action: ActionFinish, Status: models.StatusSuccess}, nil
		}
		next := r.pipeline.steps[i+1]
		return Decision{Action: ActionForward, Topic: next.Topics.Forward, Step: next.Source}, nil

	case models.StatusRollbackPending:
		step := r.pipeline.steps[i]
		return Decision{Action: ActionCompensate, Topic: step.Topics.Compensate, Step: step.Source}, nil

	case models.StatusFail:
		if i == 0 {
			return Decision{Action: ActionFinish, Status: models.StatusFail}, nil
		}
		prev := r.pipeline.steps[i-1]
		return Decision{Action: ActionCompensate, Topic: prev.Topics.Compensate, Step: prev.Source}, nil

	default:
		return Decision{}, fmt.Errorf("status %s from %s cannot be routed", event.Status, event.Source)
	}
}
