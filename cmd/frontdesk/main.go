// Command frontdesk runs the session orchestrator gateway: phone
// screening over HTTP, the web assistant over websocket, and the shared
// transcript store behind both.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frontdesk-ai/frontdesk/internal/dotenv"
	"github.com/frontdesk-ai/frontdesk/pkg/alert"
	"github.com/frontdesk-ai/frontdesk/pkg/avatar"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	gatewayserver "github.com/frontdesk-ai/frontdesk/pkg/gateway/server"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
	"github.com/frontdesk-ai/frontdesk/pkg/webquery"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(context.Context, config.Config, *slog.Logger) (store.Store, func(), error)
	newGateway   func(config.Config, *slog.Logger, store.Store, webquery.AvatarSink) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		openStore:    openStore,
		newGateway:   gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) },
		signalStop:   signal.Stop,
	}
}

// openStore builds the configured backend and wraps it with the
// retrying adapter so transient backend faults do not lose records.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	var (
		inner   store.Store
		cleanup = func() {}
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		inner = store.NewMemory()
	case config.StoreDriverPostgres:
		if cfg.MigrateOnStart {
			if err := store.Migrate(ctx, cfg.PostgresURL); err != nil {
				return nil, nil, fmt.Errorf("migrate store: %w", err)
			}
		}
		pg, err := store.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		inner = pg
		cleanup = pg.Close
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	alerts := alert.WebhookSink{
		URL:     cfg.AlertWebhookURL,
		Logger:  logger,
		Timeout: cfg.WebhookTimeout,
	}
	retrying := store.NewRetrying(inner, store.RetryConfig{
		MaxAttempts: uint64(cfg.AppendMaxAttempts),
		BaseBackoff: cfg.AppendBaseBackoff,
		MaxBackoff:  cfg.AppendMaxBackoff,
	}, alerts, logger)
	return retrying, cleanup, nil
}

func buildAvatarSink(cfg config.Config, logger *slog.Logger) (webquery.AvatarSink, func()) {
	if cfg.AvatarWebhookURL == "" {
		return avatar.Discard{}, func() {}
	}
	hook := &avatar.Webhook{
		URL:     cfg.AvatarWebhookURL,
		Logger:  logger,
		Timeout: cfg.WebhookTimeout,
	}
	return hook, hook.Wait
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil || deps.openStore == nil || deps.newGateway == nil {
		return errors.New("missing gateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, closeStore, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, waitAvatar := buildAvatarSink(cfg, logger)
	gw := deps.newGateway(cfg, logger, st, sink)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"store_driver", cfg.StoreDriver,
		"principal", cfg.Principal,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	reapDone := make(chan struct{})
	reapStop := make(chan struct{})
	go func() {
		defer close(reapDone)
		interval := cfg.ReapInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-reapStop:
				return
			case <-ticker.C:
				if n := gw.Orchestrator().ReapIdle(context.Background()); n > 0 {
					logger.Info("reaped idle sessions", "count", n)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		close(reapStop)
		<-reapDone
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		close(reapStop)
		<-reapDone
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	gw.WarnWebSessionsDraining()
	close(reapStop)
	<-reapDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitWebSessions(waitCtx) {
		gw.CancelWebSessions()
	}

	// Finalize whatever remains so mid-call transcripts still commit.
	finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer finalizeCancel()
	gw.Orchestrator().Shutdown(finalizeCtx)
	waitAvatar()

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "frontdesk: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "frontdesk: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
