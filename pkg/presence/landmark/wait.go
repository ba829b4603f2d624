package landmark

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-focuscoach/pkg/presence"
)

// Polling defaults: 100ms x 50 attempts.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollAttempts = 50
)

// WaitAvailable polls loader until it reports availability. It checks
// once immediately and then once per interval, giving up with
// presence.ErrModelUnavailable after attempts polls.
func WaitAvailable(ctx context.Context, loader Loader, interval time.Duration, attempts int) error {
	if loader == nil {
		return fmt.Errorf("%w: no loader", presence.ErrModelUnavailable)
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if loader.Available() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if loader.Available() {
			return nil
		}
		if n >= attempts {
			return fmt.Errorf("%w: not available after %d attempts (%v)",
				presence.ErrModelUnavailable, attempts, time.Duration(attempts)*interval)
		}
	}
}
