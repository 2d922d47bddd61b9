package participant

import (
	"fmt"

	"checkout/internal/config"
	"checkout/internal/idempotency"
	"checkout/internal/logger"
	"checkout/pkg/cel"
)

// Setup collects what a participant service needs to build its Handler.
type Setup struct {
	// Name keys saga.participants in the config file.
	Name    string
	Records idempotency.RecordChecker
	Topics  config.ParticipantTopics
	// Claims is optional; it is used only when idempotency.claim_enabled is set.
	Claims idempotency.ClaimRepository
}

// Build wires the idempotency guard and the configured CEL rules around p.
func Build(p Participant, setup Setup, cfg *config.Config, publisher Publisher, log logger.Logger) (*Handler, error) {
	guardOpts := []idempotency.Option{idempotency.WithDuplicateMessage(p.Messages().Duplicate)}
	if setup.Claims != nil {
		guardOpts = append(guardOpts, idempotency.WithClaims(setup.Claims))
	}
	guard := idempotency.NewGuard(p.Source(), setup.Records, cfg.Idempotency, log, guardOpts...)

	var opts []HandlerOption
	if rules := cfg.Saga.Participant(setup.Name).Rules; len(rules) > 0 {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create rule evaluator: %w", err)
		}
		policy, err := evaluator.NewPolicy(rules)
		if err != nil {
			return nil, fmt.Errorf("invalid rules for %s: %w", setup.Name, err)
		}
		opts = append(opts, WithPolicy(policy))
		log.Infow("Participant rules loaded", "participant", setup.Name, "rules", policy.Len())
	}

	return NewHandler(p, guard, publisher, setup.Topics, log, opts...), nil
}
