package cel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"checkout/pkg/errors"
	"checkout/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("orderId", cel.StringType),
		cel.Variable("transactionId", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidateRule checks that expression compiles and yields a bool.
func (e *Evaluator) ValidateRule(expression string) error {
	_, err := e.compileRule(expression)
	return err
}

func (e *Evaluator) compileRule(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}

func (e *Evaluator) EvaluateRule(ctx context.Context, expression string, event models.Event) (bool, error) {
	program, err := e.compileRule(expression)
	if err != nil {
		return false, err
	}
	return evalBool(ctx, program, event)
}

func evalBool(ctx context.Context, program cel.Program, event models.Event) (bool, error) {
	vars, err := Activation(event)
	if err != nil {
		return false, err
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}
	return boolVal, nil
}

// Activation exposes the envelope to expressions. The payload is passed in
// its wire form, so rules address fields by their JSON names.
func Activation(event models.Event) (map[string]interface{}, error) {
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	payload := make(map[string]interface{})
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	return map[string]interface{}{
		"orderId":       event.OrderID,
		"transactionId": event.TransactionID,
		"source":        string(event.Source),
		"status":        string(event.Status),
		"payload":       payload,
	}, nil
}

type rule struct {
	expression string
	program    cel.Program
}

// Policy is a compiled set of boolean rules. An envelope passes when every
// rule evaluates to true.
type Policy struct {
	rules []rule
}

func (e *Evaluator) NewPolicy(expressions []string) (*Policy, error) {
	p := &Policy{rules: make([]rule, 0, len(expressions))}
	for _, expr := range expressions {
		program, err := e.compileRule(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid rule %q: %w", expr, err)
		}
		p.rules = append(p.rules, rule{expression: expr, program: program})
	}
	return p, nil
}

func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Check returns a BUSINESS_RULE_VIOLATION for the first rule that is false.
// A rule that fails to evaluate also rejects the envelope.
func (p *Policy) Check(ctx context.Context, event models.Event) error {
	if p == nil {
		return nil
	}
	for _, r := range p.rules {
		ok, err := evalBool(ctx, r.program, event)
		if err != nil {
			return errors.BusinessRule(fmt.Sprintf("Policy rule could not be evaluated: %s", r.expression)).WithCause(err)
		}
		if !ok {
			return errors.BusinessRule(fmt.Sprintf("Policy rule rejected the order: %s", r.expression))
		}
	}
	return nil
}
