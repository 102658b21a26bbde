package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func keyFromInput(ctx context.Context, input any) (string, error) {
	s, ok := input.(string)
	if !ok {
		return "", PermanentError(errors.New("route key must be a string"))
	}
	return s, nil
}

func constStep(name, out string) *Func {
	return NewFunc(name, func(ctx context.Context, input any) (any, error) {
		return out, nil
	})
}

// TestRouterDispatchesByKey verifies exactly one route runs, chosen by the
// route function.
func TestRouterDispatchesByKey(t *testing.T) {
	t.Parallel()

	r := NewRouter("switch", keyFromInput, map[string]Primitive{
		"premium":  constStep("premium-handler", "premium-result"),
		"standard": constStep("standard-handler", "standard-result"),
	})

	out, err := Execute(context.Background(), r, "premium")
	require.NoError(t, err)
	require.Equal(t, "premium-result", out)

	out, err = Execute(context.Background(), r, "standard")
	require.NoError(t, err)
	require.Equal(t, "standard-result", out)
}

// TestRouterDefaultRoute verifies an unmatched key falls back to the named
// default route.
func TestRouterDefaultRoute(t *testing.T) {
	t.Parallel()

	r := NewRouter("switch", keyFromInput, map[string]Primitive{
		"known":    constStep("known-handler", "known"),
		"fallback": constStep("fallback-handler", "caught"),
	})
	r.Default = "fallback"

	out, err := Execute(context.Background(), r, "mystery")
	require.NoError(t, err)
	require.Equal(t, "caught", out)
}

// TestRouterNoMatch verifies the permanent failure when no route matches
// and no default is configured.
func TestRouterNoMatch(t *testing.T) {
	t.Parallel()

	r := NewRouter("switch", keyFromInput, map[string]Primitive{
		"known": constStep("known-handler", "known"),
	})

	_, err := Execute(context.Background(), r, "mystery")
	require.Error(t, err)
	require.True(t, IsPermanent(err), "a routing gap is not retryable")
	require.Contains(t, err.Error(), "no matching route")
	require.Contains(t, err.Error(), "mystery")
}

// TestRouterRouteFunctionError verifies a failing route function
// propagates without running any route.
func TestRouterRouteFunctionError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("cannot inspect input")
	ran := false
	r := NewRouter("switch", func(ctx context.Context, input any) (string, error) {
		return "", sentinel
	}, map[string]Primitive{
		"only": NewFunc("only", func(ctx context.Context, input any) (any, error) {
			ran = true
			return nil, nil
		}),
	})

	_, err := Execute(context.Background(), r, nil)
	require.ErrorIs(t, err, sentinel)
	require.False(t, ran)
}

// TestRouterConstructorValidation verifies build-time panics.
func TestRouterConstructorValidation(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewRouter("", keyFromInput, nil) })
	require.Panics(t, func() { NewRouter("x", nil, nil) })
	require.Panics(t, func() {
		NewRouter("x", keyFromInput, map[string]Primitive{"bad": nil})
	})
}

// TestRouterCopiesRoutes verifies later mutation of the caller's map does
// not affect the router.
func TestRouterCopiesRoutes(t *testing.T) {
	t.Parallel()

	routes := map[string]Primitive{
		"a": constStep("a-handler", "a-result"),
	}
	r := NewRouter("switch", keyFromInput, routes)
	delete(routes, "a")

	out, err := Execute(context.Background(), r, "a")
	require.NoError(t, err)
	require.Equal(t, "a-result", out)
}
