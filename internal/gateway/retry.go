package gateway

import (
	"context"
	"math/rand"
	"time"

	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// Policy bounds retries for one provider call: attempt count, exponential
// backoff with jitter, and a wall-clock budget across all attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	Budget      time.Duration
}

// DefaultPolicy matches the documented defaults: 3 attempts, 500ms base,
// doubling up to 10s, 20% jitter, 60s total budget.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
		Budget:      60 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delayFor(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 {
		f := 1 + (rand.Float64()*2-1)*p.Jitter
		d = time.Duration(float64(d) * f)
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn under the policy. Rejections and context cancellation stop
// retrying immediately; the last error is returned when attempts or the
// budget run out.
func Do(ctx context.Context, p Policy, log logx.Logger, op string, fn func(ctx context.Context) error) error {
	p = p.normalized()

	if p.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Budget)
		defer cancel()
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delayFor(attempt)
		log.Warn("provider call failed; retrying",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
