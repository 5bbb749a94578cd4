package orchestrator

import (
	"context"
	"time"

	"github.com/syncbridge/syncbridge/internal/logger"
)

// readinessFunc reports whether one side's replication schema is ready.
type readinessFunc func(ctx context.Context) bool

// Waiter polls both sides until their replication schemas are ready or the
// deadline passes. Partial readiness is a result, not an error: the caller
// configures whichever sides came up and the health loop retries the rest.
type Waiter struct {
	Interval time.Duration
	Deadline time.Duration
}

// NewWaiter returns a Waiter with the standard cadence. Schema creation on
// a cold remote database routinely takes minutes.
func NewWaiter() *Waiter {
	return &Waiter{Interval: 3 * time.Second, Deadline: 5 * time.Minute}
}

// Wait polls until both sides report ready, the deadline passes, or ctx is
// canceled. A side that turns ready stays ready; it is not re-polled.
func (w *Waiter) Wait(ctx context.Context, localReady, remoteReady readinessFunc) (localOK, remoteOK bool) {
	deadline := time.Now().Add(w.Deadline)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if !localOK {
			localOK = localReady(ctx)
		}
		if !remoteOK {
			remoteOK = remoteReady(ctx)
		}
		if localOK && remoteOK {
			logger.Info("replication schema ready on both sides")
			return localOK, remoteOK
		}
		if time.Now().After(deadline) {
			logger.Warn("schema readiness deadline passed",
				"local", localOK, "remote", remoteOK)
			return localOK, remoteOK
		}

		select {
		case <-ctx.Done():
			return localOK, remoteOK
		case <-ticker.C:
		}
	}
}
