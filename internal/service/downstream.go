package service

import (
	"context"
	"time"

	"github.com/timmy/rollcall/internal/domain"
)

// Downstream is the external system each chunk is pushed to before it is stored.
type Downstream interface {
	Call(ctx context.Context, chunk []*domain.StudentRecord) error
}

// SimulatedDownstream stands in for the external system with a fixed per-chunk delay.
type SimulatedDownstream struct {
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSimulatedDownstream creates a downstream that waits delay per call.
func NewSimulatedDownstream(delay time.Duration) *SimulatedDownstream {
	return &SimulatedDownstream{delay: delay, sleep: sleepContext}
}

func (d *SimulatedDownstream) Call(ctx context.Context, _ []*domain.StudentRecord) error {
	return d.sleep(ctx, d.delay)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
