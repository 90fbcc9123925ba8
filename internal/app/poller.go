package app

import (
	"context"
	"time"

	"k8s.io/klog/v2"
)

const (
	defaultPollInterval = 10 * time.Second
	maxBackoff          = 30 * time.Second
)

// Refresher reloads one group of collections.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Target is a named Refresher polled by StartPoller.
type Target struct {
	Name      string
	Refresher Refresher
}

// StartPoller launches a background goroutine that refreshes every target at
// a fixed cadence, backing off while refreshes fail. It returns immediately.
func StartPoller(ctx context.Context, interval time.Duration, targets ...Target) {
	go poll(ctx, interval, targets)
}

func poll(ctx context.Context, interval time.Duration, targets []Target) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	failures := 0
	for {
		t := time.NewTimer(calculateBackoff(failures, interval))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		if refreshAll(ctx, targets) {
			failures = 0
		} else {
			failures++
		}
	}
}

// refreshAll reports whether every target refreshed. Each poll is a fresh
// request; a failed one is not retried.
func refreshAll(ctx context.Context, targets []Target) bool {
	ok := true
	for _, t := range targets {
		if ctx.Err() != nil {
			return ok
		}
		if err := t.Refresher.Refresh(ctx); err != nil {
			ok = false
			klog.ErrorS(err, "Poll failed", "target", t.Name)
		}
	}
	return ok
}

// calculateBackoff doubles interval for each consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, interval time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	d := interval
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
