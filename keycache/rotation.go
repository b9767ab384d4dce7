package keycache

import (
	"context"

	"github.com/healthbridge/abdm-broker/lib/logger"
)

// RotationLoop runs the two scheduled key rotation checks: an unconditional
// refetch once per horizon, and a periodic check that refetches early when
// the cached copy is within a week of elapsing. Both go through the
// single-flight fetch guard. Failures are logged, never fatal; the loop
// exits only when ctx is done.
func (c *Cache) RotationLoop(ctx context.Context) {
	log := logger.Get(ctx)
	log.Infof("Starting public key rotation checks, interval %s", c.checkInterval)

	rotation := c.clock.NewTimer(c.horizon)
	defer rotation.Stop()
	check := c.clock.NewTimer(c.checkInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Shutting down public key rotation checks")
			return
		case <-rotation.Chan():
			c.refetch(ctx, "scheduled rotation")
			rotation.Reset(c.horizon)
		case <-check.Chan():
			if c.expiringSoon() {
				c.refetch(ctx, "key expiring soon")
			}
			check.Reset(c.checkInterval)
		}
	}
}

func (c *Cache) expiringSoon() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pemKey == "" {
		return false
	}
	return c.clock.Now().After(c.expiresAt.Add(-expiryProximity))
}

func (c *Cache) refetch(ctx context.Context, reason string) {
	log := logger.Get(ctx)
	log.Infof("Refreshing public key: %s", reason)
	if _, err := c.fetch(ctx); err != nil {
		log.WithError(err).Error("Public key refresh failed, will retry on a later check")
	}
}
