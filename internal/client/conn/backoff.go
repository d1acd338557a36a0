package conn

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffFactory builds a fresh delay sequence for one reconnect cycle.
// The factory is the pluggable policy point: swap it for jittered or
// linear strategies without touching the manager.
type BackoffFactory func() retry.Backoff

// DefaultBackoff yields min(base*2^(n-1), max) for attempt n
func DefaultBackoff(base, max time.Duration) BackoffFactory {
	return func() retry.Backoff {
		return retry.WithCappedDuration(max, retry.NewExponential(base))
	}
}
