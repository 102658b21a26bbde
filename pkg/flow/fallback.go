package flow

import (
	"context"
	"errors"
)

// Fallback tries its primaries in order until one succeeds. It advances
// past Transient, Permanent and unclassified failures; Timeout and
// CircuitOpen failures and cancellation propagate immediately, since a
// later primary is unlikely to behave differently within the same
// deadline. Each attempt is a sibling span under the Fallback span; when
// every primary fails the last error is returned.
type Fallback struct {
	name      string
	primaries []Primitive
}

var _ Primitive = (*Fallback)(nil)

// NewFallback orders primaries by preference. At least one is required.
func NewFallback(name string, primaries ...Primitive) *Fallback {
	if name == "" {
		panic("flow: fallback name must not be empty")
	}
	if len(primaries) == 0 {
		panic("flow: fallback requires at least one primitive")
	}
	for _, p := range primaries {
		if p == nil {
			panic("flow: fallback primitive must not be nil")
		}
	}
	return &Fallback{name: name, primaries: primaries}
}

func (f *Fallback) Name() string { return f.name }
func (f *Fallback) Type() string { return TypeFallback }

func (f *Fallback) Execute(ctx context.Context, input any) (any, error) {
	attempts := 0
	defer func() {
		Annotate(ctx, "fallback.attempts", attempts)
	}()

	var lastErr error
	for _, p := range f.primaries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		output, err := RunChild(ctx, p, input)
		attempts++
		if err == nil {
			return output, nil
		}
		lastErr = err
		if !fallbackEligible(err) {
			break
		}
	}
	return nil, lastErr
}

// fallbackEligible reports whether the next primary should be tried after
// this failure.
func fallbackEligible(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	kind, ok := Classify(err)
	if !ok {
		return true
	}
	return kind == KindTransient || kind == KindPermanent
}
