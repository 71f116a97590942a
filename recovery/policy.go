package recovery

import (
	"context"
	"fmt"
	"time"
)

// PolicyKind names a node in a RecoveryPolicy tree (spec.md §3
// "RecoveryPolicy — declarative strategy tree").
type PolicyKind string

const (
	PolicyRetryFixed       PolicyKind = "retry_fixed"
	PolicyRetryExponential PolicyKind = "retry_exponential"
	PolicyRetryAdaptive    PolicyKind = "retry_adaptive"
	PolicyCircuitBreaker   PolicyKind = "circuit_breaker"
	PolicyDeadline         PolicyKind = "deadline"
	PolicyFallback         PolicyKind = "fallback"
)

// Policy is a declarative, YAML-loadable recovery strategy tree. Only one
// of the composition fields (Inner, Primary+Alternate) is meaningful per
// Kind; Compile validates and wires the concrete primitive.
type Policy struct {
	Kind PolicyKind `yaml:"kind"`

	Attempts int           `yaml:"attempts,omitempty"`
	Delay    time.Duration `yaml:"delay,omitempty"`
	Initial  time.Duration `yaml:"initial,omitempty"`
	Max      time.Duration `yaml:"max,omitempty"`
	Mult     float64       `yaml:"mult,omitempty"`
	Jitter   string        `yaml:"jitter,omitempty"`

	FailureThreshold uint32        `yaml:"failure_threshold,omitempty"`
	Window           time.Duration `yaml:"window,omitempty"`
	Timeout          time.Duration `yaml:"timeout,omitempty"`

	Budget time.Duration `yaml:"budget,omitempty"`

	Inner     *Policy `yaml:"inner,omitempty"`
	Primary   *Policy `yaml:"primary,omitempty"`
	Alternate *Policy `yaml:"alternate,omitempty"`
}

// Compile turns the declarative tree into an executable Operation wrapper:
// calling the returned function with the leaf operation applies every
// policy in the tree around it.
func (p *Policy) Compile(name string) (func(ctx context.Context, op Operation) error, error) {
	if p == nil {
		return func(ctx context.Context, op Operation) error { return op(ctx) }, nil
	}

	switch p.Kind {
	case PolicyRetryFixed:
		return func(ctx context.Context, op Operation) error {
			return RetryFixed(ctx, p.Attempts, p.Delay, op)
		}, nil

	case PolicyRetryExponential:
		return func(ctx context.Context, op Operation) error {
			return RetryExponential(ctx, p.Attempts, p.Initial, p.Max, p.Mult, op)
		}, nil

	case PolicyRetryAdaptive:
		kind, err := parseJitter(p.Jitter)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, op Operation) error {
			return RetryAdaptive(ctx, p.Attempts, p.Initial, p.Max, kind, op)
		}, nil

	case PolicyCircuitBreaker:
		cb := NewCircuitBreaker(name, p.FailureThreshold, p.Window, p.Timeout)
		return cb.Run, nil

	case PolicyDeadline:
		innerFn, err := p.Inner.Compile(name)
		if err != nil {
			return nil, err
		}
		budget := p.Budget
		return func(ctx context.Context, op Operation) error {
			return Deadline{Budget: budget, Inner: func(ctx context.Context) error { return innerFn(ctx, op) }}.Run(ctx)
		}, nil

	case PolicyFallback:
		primaryFn, err := p.Primary.Compile(name + ".primary")
		if err != nil {
			return nil, err
		}
		alternateFn, err := p.Alternate.Compile(name + ".alternate")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, op Operation) error {
			return Fallback{
				Primary:   func(ctx context.Context) error { return primaryFn(ctx, op) },
				Alternate: func(ctx context.Context) error { return alternateFn(ctx, op) },
			}.Run(ctx)
		}, nil

	default:
		return nil, fmt.Errorf("recovery: unknown policy kind %q", p.Kind)
	}
}

func parseJitter(s string) (Jitter, error) {
	switch s {
	case "", "none", "None":
		return JitterNone, nil
	case "full", "Full":
		return JitterFull, nil
	case "equal", "Equal":
		return JitterEqual, nil
	case "decorrelated", "Decorrelated":
		return JitterDecorrelated, nil
	default:
		return JitterNone, fmt.Errorf("recovery: unknown jitter kind %q", s)
	}
}
