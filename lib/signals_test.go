package lib

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDaemon struct {
	mu        sync.Mutex
	shutdowns int
	closes    int
	// block keeps Shutdown hanging until it is closed.
	block chan struct{}
}

func (d *fakeDaemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.shutdowns++
	block := d.block
	d.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *fakeDaemon) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
}

func (d *fakeDaemon) counts() (shutdowns, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdowns, d.closes
}

func TestServeSignalsGraceful(t *testing.T) {
	daemon := &fakeDaemon{}
	done := make(chan struct{})
	go func() {
		ServeSignals(context.Background(), daemon, time.Second)
		close(done)
	}()

	// Let signal.Notify register before raising the signal.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signal handler did not return after a graceful shutdown")
	}
	shutdowns, closes := daemon.counts()
	require.Equal(t, 1, shutdowns)
	require.Equal(t, 0, closes)
}

func TestServeSignalsForced(t *testing.T) {
	daemon := &fakeDaemon{block: make(chan struct{})}
	defer close(daemon.block)
	done := make(chan struct{})
	go func() {
		ServeSignals(context.Background(), daemon, time.Minute)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	// Wait for the graceful attempt to start hanging, then raise again.
	require.Eventually(t, func() bool {
		shutdowns, _ := daemon.counts()
		return shutdowns == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signal handler did not return after a forced stop")
	}
	_, closes := daemon.counts()
	require.Equal(t, 1, closes)
}
