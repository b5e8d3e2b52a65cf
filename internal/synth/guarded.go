package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	cerrors "github.com/Aman-CERP/codechat/internal/errors"
)

// DefaultTimeout bounds one synthesis call.
const DefaultTimeout = 60 * time.Second

// Guarded bounds a Synthesizer with a timeout and a circuit breaker. It never
// retries.
type Guarded struct {
	inner   Synthesizer
	breaker *cerrors.CircuitBreaker
	timeout time.Duration
}

// NewGuarded wraps inner. A nil breaker creates one with default settings.
func NewGuarded(inner Synthesizer, timeout time.Duration, breaker *cerrors.CircuitBreaker) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if breaker == nil {
		breaker = cerrors.NewCircuitBreaker("synthesis")
	}
	return &Guarded{inner: inner, breaker: breaker, timeout: timeout}
}

// Name implements Synthesizer.
func (g *Guarded) Name() string { return g.inner.Name() }

// Available implements Synthesizer. An open circuit counts as unavailable.
func (g *Guarded) Available(ctx context.Context) bool {
	if g.breaker.State() == cerrors.StateOpen {
		return false
	}
	return g.inner.Available(ctx)
}

// Breaker exposes the circuit breaker for health reporting.
func (g *Guarded) Breaker() *cerrors.CircuitBreaker { return g.breaker }

// Timeout returns the per-call limit.
func (g *Guarded) Timeout() time.Duration { return g.timeout }

// Synthesize implements Synthesizer. The call is cancelled when ctx ends or
// the timeout elapses, whichever comes first. Cancellation by the caller
// does not count against the circuit.
func (g *Guarded) Synthesize(ctx context.Context, question, codeContext string) (Answer, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	countable := func(error) bool { return ctx.Err() == nil }

	ans, err := cerrors.Call(g.breaker, countable, func() (Answer, error) {
		return g.inner.Synthesize(callCtx, question, codeContext)
	})
	if err == nil {
		return ans, nil
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return Answer{}, fmt.Errorf("synthesis timed out after %s: %w", g.timeout, err)
	}
	return Answer{}, err
}
