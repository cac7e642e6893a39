// Package pool keeps reusable timers for the deadlines and delays of the gateway.
package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a stopped-and-reset timer firing after d.
//
// Return the timer to the pool with PutTimer once it is no longer selected on.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			// still active when pooled: drop a stale tick
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns t to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep blocks for d or until ctx is done, whichever happens first.
// It returns ctx.Err() when the sleep was interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
