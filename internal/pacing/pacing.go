// Package pacing spaces out newsletter sends so the email provider's rate
// limits are respected.
package pacing

import (
	"context"
	"time"
)

// FixedDelay waits the same interval before every send.
type FixedDelay struct {
	delay time.Duration
}

// NewFixedDelay returns a pacer that waits d between sends. d <= 0 disables waiting.
func NewFixedDelay(d time.Duration) *FixedDelay {
	return &FixedDelay{delay: d}
}

// Wait blocks for the configured delay or until ctx is done.
func (p *FixedDelay) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Waiter is anything that can hold a send back.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Chain waits on each pacer in order. Typical use is a fixed local delay in
// front of a shared Redis budget.
type Chain []Waiter

func (c Chain) Wait(ctx context.Context) error {
	for _, w := range c {
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
