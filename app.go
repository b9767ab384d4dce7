package main

import (
	"context"
	"os"

	"github.com/gravitational/trace"

	"github.com/healthbridge/abdm-broker/gateway"
	"github.com/healthbridge/abdm-broker/keycache"
	"github.com/healthbridge/abdm-broker/lib"
	"github.com/healthbridge/abdm-broker/lib/logger"
	"github.com/healthbridge/abdm-broker/tokens"
)

// App contains global application state.
type App struct {
	conf Config

	tokenManager *tokens.Manager
	keyCache     *keycache.Cache
	apiSrv       *APIServer

	*lib.Process
}

func NewApp(conf Config) (*App, error) {
	gatewayClient, err := gateway.NewClient(gateway.Config{
		SessionURL:     conf.Gateway.SessionURL,
		CertificateURL: conf.Gateway.CertificateURL,
		CMID:           conf.Gateway.CMID,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	tokenManager, err := tokens.NewManager(tokens.Config{
		Store:           tokens.NewFileStore(conf.tokenFile()),
		Gateway:         gatewayClient,
		CMID:            conf.Gateway.CMID,
		RefreshBuffer:   conf.refreshBuffer(),
		RefreshInterval: conf.refreshInterval(),
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	keyCache, err := keycache.NewCache(keycache.Config{
		Headers:       tokenManager,
		Gateway:       gatewayClient,
		KeyFile:       conf.keyFile(),
		Horizon:       conf.keyHorizon(),
		CheckInterval: conf.keyCheckInterval(),
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return &App{
		conf:         conf,
		tokenManager: tokenManager,
		keyCache:     keyCache,
		apiSrv:       NewAPIServer(conf.HTTP, tokenManager, keyCache),
	}, nil
}

// Run starts the API server and the background lifecycle jobs, then blocks
// until the process is shut down.
func (a *App) Run(ctx context.Context) error {
	log := logger.Get(ctx)
	log.Infof("Starting ABDM credential broker %s:%s", Version, Gitref)

	if err := os.MkdirAll(a.conf.Broker.DataDir, 0700); err != nil {
		return trace.ConvertSystemError(err)
	}

	a.Process = lib.NewProcess(ctx)

	var httpErr error

	// Broker API. A server failure shuts the whole process down.
	a.Spawn(func(ctx context.Context) {
		defer a.Terminate()

		a.OnTerminate(func(ctx context.Context) {
			if err := a.apiSrv.ShutdownServer(ctx); err != nil {
				log.WithError(err).Error("API server graceful shutdown failed")
			}
		})

		httpErr = trace.Wrap(a.apiSrv.Run(ctx))
	})

	// Proactive credential refresh.
	a.Spawn(func(ctx context.Context) {
		lctx, lcancel := context.WithCancel(ctx)
		a.OnTerminate(func(context.Context) { lcancel() })

		lctx, _ = logger.WithField(lctx, "job", "token-refresh")
		a.tokenManager.RefreshLoop(lctx)
	})

	// Public key rotation checks.
	a.Spawn(func(ctx context.Context) {
		lctx, lcancel := context.WithCancel(ctx)
		a.OnTerminate(func(context.Context) { lcancel() })

		lctx, _ = logger.WithField(lctx, "job", "key-rotation")
		a.keyCache.RotationLoop(lctx)
	})

	<-a.Process.Done()
	return trace.Wrap(httpErr)
}
