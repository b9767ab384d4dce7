package tokens

import (
	"context"
	"errors"

	"github.com/gravitational/trace"

	"github.com/healthbridge/abdm-broker/lib/logger"
)

// RefreshLoop proactively walks the credential lifecycle on a fixed
// interval so foreground callers rarely observe an expiring token. It never
// creates a record on its own; only an explicit Issue call does that.
//
// The loop exits only when ctx is done. Failures of a single cycle are
// logged and swallowed: a future cycle or a foreground call may retry.
func (m *Manager) RefreshLoop(ctx context.Context) {
	log := logger.Get(ctx)
	log.Infof("Starting periodic credential refresh, interval %s", m.refreshInterval)

	timer := m.clock.NewTimer(m.refreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Shutting down periodic credential refresh")
			return
		case <-timer.Chan():
			if _, err := m.GetValidToken(ctx); err != nil {
				switch {
				case trace.IsNotFound(err):
					log.Debug("No credential issued yet, nothing to refresh")
				case errors.Is(err, ErrRefreshFailed):
					log.WithError(err).Error("Periodic credential refresh failed, will retry next cycle")
				default:
					log.WithError(err).Error("Unexpected error during periodic credential refresh")
				}
			}
			timer.Reset(m.refreshInterval)
		}
	}
}
