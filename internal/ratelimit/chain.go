package ratelimit

import (
	"context"
	"time"
)

// Chain applies several limiters to one request. Any rejection rejects the
// request; permits already taken from earlier limiters are released.
type Chain struct {
	limiters []*FixedWindow
}

// NewChain checks limiters in the given order.
func NewChain(limiters ...*FixedWindow) *Chain {
	var ls []*FixedWindow
	for _, l := range limiters {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return &Chain{limiters: ls}
}

// TryAcquire implements Limiter. On rejection RetryAfter is the longest wait
// among the limiters that are over their limit.
func (c *Chain) TryAcquire(ctx context.Context, identity string) (Decision, error) {
	var taken []Decision
	result := Decision{Outcome: Acquired}

	for i, l := range c.limiters {
		d, err := l.TryAcquire(ctx, identity)
		if err != nil {
			releaseAll(taken)
			return Decision{}, err
		}
		if d.Outcome == Rejected {
			releaseAll(taken)
			d.RetryAfter = maxRetryAfter(d.RetryAfter, identity, c.limiters[i+1:])
			return d, nil
		}
		taken = append(taken, d)
		if d.Outcome == Queued {
			result.Outcome = Queued
			result.Waited += d.Waited
		}
		result.leases = append(result.leases, d.leases...)
	}
	return result, nil
}

// Sweep sweeps every limiter in the chain.
func (c *Chain) Sweep() int {
	n := 0
	for _, l := range c.limiters {
		n += l.Sweep()
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Chain) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func releaseAll(ds []Decision) {
	for _, d := range ds {
		d.Release()
	}
}

func maxRetryAfter(cur time.Duration, identity string, rest []*FixedWindow) time.Duration {
	for _, l := range rest {
		if full, after := l.wouldReject(identity); full && after > cur {
			cur = after
		}
	}
	return cur
}
