package lib

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthbridge/abdm-broker/lib/logger"
)

// Terminable is a daemon that can be shut down.
type Terminable interface {
	// Shutdown attempts to gracefully terminate.
	Shutdown(context.Context) error
	// Close does a fast (force) termination.
	Close()
}

// ServeSignals blocks translating OS signals into daemon shutdown: the first
// SIGTERM or SIGINT starts a graceful shutdown bounded by shutdownTimeout,
// a second signal forces an immediate stop.
func ServeSignals(ctx context.Context, app Terminable, shutdownTimeout time.Duration) {
	log := logger.Get(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	first := <-signals
	log.Infof("Caught %s, shutting down gracefully", first)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sctx, scancel := context.WithTimeout(ctx, shutdownTimeout)
		defer scancel()
		if err := app.Shutdown(sctx); err != nil {
			log.WithError(err).Error("Graceful shutdown failed, forcing stop")
			app.Close()
		}
	}()

	select {
	case <-done:
	case second := <-signals:
		log.Infof("Caught %s again, forcing stop", second)
		app.Close()
	}
}
