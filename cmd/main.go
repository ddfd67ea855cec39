// Command world-realtime-core is the replication fabric's entry point: it
// wires together the store, session manager, query dispatcher, notification
// bridge, fan-out, tick engine and transport listener, then serves until a
// shutdown signal arrives.
//
// The startup/shutdown shape (env-driven config, a goroutine running the
// listener, signal.Notify on SIGINT/SIGTERM, a timed graceful Shutdown) is
// grounded directly on the teacher's own cmd/main.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/vircadia/world-realtime-core/internal/auth"
	"github.com/vircadia/world-realtime-core/internal/cache"
	"github.com/vircadia/world-realtime-core/internal/config"
	"github.com/vircadia/world-realtime-core/internal/dispatch"
	"github.com/vircadia/world-realtime-core/internal/fanout"
	"github.com/vircadia/world-realtime-core/internal/logging"
	"github.com/vircadia/world-realtime-core/internal/notify"
	"github.com/vircadia/world-realtime-core/internal/store/postgres"
	"github.com/vircadia/world-realtime-core/internal/tick"
	"github.com/vircadia/world-realtime-core/internal/transport"
	"github.com/vircadia/world-realtime-core/internal/ws"
)

func main() {
	cfg := config.Load()
	logging.Initialize("info", cfg.Debug)
	log := logging.Log

	log.Info().Msg("starting replication core")

	st, err := postgres.New(postgres.Config{
		Host:     cfg.StoreHost,
		Port:     strconv.Itoa(cfg.StorePort),
		User:     cfg.StoreUser,
		Password: cfg.StorePassword,
		DBName:   cfg.StoreDBName,
		SSLMode:  cfg.StoreSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run store migrations")
	}

	authMgr := auth.NewManager(st, time.Duration(cfg.WSCheckIntervalMs)*time.Millisecond, cfg.MaxSessionsPerAgent)
	sessionCache, err := cache.NewCache(cache.Config{
		Host:    cfg.NotifyCacheHost,
		Port:    strconv.Itoa(cfg.NotifyCachePort),
		Enabled: cfg.NotifyCacheHost != "",
	})
	if err != nil {
		log.Warn().Err(err).Msg("session cache unavailable, falling back to store-only validation")
	} else {
		defer sessionCache.Close()
		authMgr.WithCache(sessionCache)
	}

	disp := dispatch.New(st, dispatch.Config{
		GlobalSemaphoreSize: cfg.DispatchGlobalSemaphoreSize,
		MaxRows:             cfg.DispatchMaxRows,
		MaxResponseBytes:    cfg.DispatchMaxResponseBytes,
	})

	registry := ws.NewRegistry()
	fan := fanout.New(st, registry)
	if sessionCache != nil {
		fan.WithDirectory(sessionCache)
	}
	notifyB := notify.New(st)
	tickEngine := tick.New(st, fan)

	srv := transport.New(cfg, authMgr, disp, fan, notifyB, registry)
	if cfg.BootstrapJWTSecret != "" {
		srv.WithBootstrap(auth.NewBootstrapIssuer(auth.BootstrapConfig{
			SecretKey: cfg.BootstrapJWTSecret,
			Issuer:    cfg.BootstrapJWTIssuer,
		}))
		srv.WithOperatorKeyHash(cfg.BootstrapOperatorKeyHash)
	} else {
		log.Warn().Msg("BOOTSTRAP_JWT_SECRET not set, /admin routes disabled")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	authMgr.Start(rootCtx)

	if err := tickEngine.Start(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to start tick engine")
	}

	errCh := make(chan error, 1)
	srv.Start(errCh)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("transport listener failed")
	}

	shutdownTimeout := 30 * time.Second
	if timeoutEnv := os.Getenv("SHUTDOWN_TIMEOUT"); timeoutEnv != "" {
		if d, err := time.ParseDuration(timeoutEnv); err == nil {
			shutdownTimeout = d
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("transport listener did not shut down cleanly")
	}

	tickEngine.Stop()
	authMgr.Stop()
	cancelRoot()

	log.Info().Msg("replication core stopped")
}
