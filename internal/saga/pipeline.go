package saga

import (
	"fmt"

	"checkout/internal/config"
	"checkout/pkg/models"
)

// Step is one participant of the pipeline and the topics it owns.
type Step struct {
	Source models.Source
	Topics config.ParticipantTopics
}

// Pipeline is the fixed, ordered list of steps of one saga type.
type Pipeline struct {
	steps []Step
	index map[models.Source]int
}

func NewPipeline(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one step")
	}
	p := &Pipeline{
		steps: append([]Step(nil), steps...),
		index: make(map[models.Source]int, len(steps)),
	}
	for i, s := range steps {
		if s.Source == "" || s.Source == models.SourceOrchestrator {
			return nil, fmt.Errorf("step %d has invalid source %q", i, s.Source)
		}
		if _, dup := p.index[s.Source]; dup {
			return nil, fmt.Errorf("step %s appears twice", s.Source)
		}
		p.index[s.Source] = i
	}
	return p, nil
}

// DefaultPipeline is product validation, then payment, then inventory.
func DefaultPipeline(topics config.TopicsConfig) *Pipeline {
	p, _ := NewPipeline(
		Step{Source: models.SourceProductValidation, Topics: topics.ProductValidation},
		Step{Source: models.SourcePayment, Topics: topics.Payment},
		Step{Source: models.SourceInventory, Topics: topics.Inventory},
	)
	return p
}

func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

func (p *Pipeline) Len() int {
	return len(p.steps)
}

func (p *Pipeline) position(source models.Source) (int, bool) {
	i, ok := p.index[source]
	return i, ok
}
