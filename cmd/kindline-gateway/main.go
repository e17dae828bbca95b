package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kindline-ai/kindline/internal/dotenv"
	"github.com/kindline-ai/kindline/pkg/gateway/config"
	"github.com/kindline-ai/kindline/pkg/gateway/convert"
	"github.com/kindline-ai/kindline/pkg/gateway/enrichment"
	"github.com/kindline-ai/kindline/pkg/gateway/generation"
	"github.com/kindline-ai/kindline/pkg/gateway/live/session"
	"github.com/kindline-ai/kindline/pkg/gateway/messaging"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
	"github.com/kindline-ai/kindline/pkg/gateway/screening"
	gatewayserver "github.com/kindline-ai/kindline/pkg/gateway/server"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
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

	app, cleanup, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	gw := gatewayserver.New(cfg, logger, app.deps)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"dev_store", cfg.DatabaseURL == "",
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

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.Lifecycle().SetDraining(true)
	gw.Sessions().WarnAll("draining", "the service is restarting, this call will end shortly")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Sessions().Wait(waitCtx) {
		gw.Sessions().CancelAll()
	}

	enrichCtx, enrichCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer enrichCancel()
	if !app.enrichment.Wait(enrichCtx) {
		logger.Warn("enrichment jobs abandoned at shutdown")
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

type app struct {
	deps       gatewayserver.Dependencies
	enrichment *enrichment.Runner
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (app, func(), error) {
	cleanup := func() {}

	var store profile.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, using in-memory profile store")
		store = profile.NewMemStore()
	} else {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return app{}, cleanup, fmt.Errorf("open database: %w", err)
		}
		if err := profile.Migrate(db); err != nil {
			_ = db.Close()
			return app{}, cleanup, err
		}
		_ = db.Close()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return app{}, cleanup, fmt.Errorf("connect database: %w", err)
		}
		cleanup = pool.Close
		store = profile.NewPGStore(pool, logger)
	}

	var processor payment.Processor
	if cfg.StripeAPIKey != "" {
		p, err := payment.NewStripeProcessor(cfg.StripeAPIKey, cfg.StripeSuccessURL, cfg.StripeCancelURL)
		if err != nil {
			return app{}, cleanup, err
		}
		processor = p
	} else {
		logger.Warn("no stripe key configured, checkout links are fake")
		processor = devProcessor{}
	}

	var sender messaging.Sender
	if cfg.SMSBaseURL != "" {
		sender = messaging.NewClient(cfg.SMSBaseURL, cfg.SMSAPIKey, cfg.SMSFrom, nil)
	} else {
		logger.Warn("no sms gateway configured, outbound texts are logged only")
		sender = devSender{logger: logger}
	}

	flow, err := payment.New(payment.Dependencies{
		Store:     store,
		Processor: processor,
		Messenger: sender,
		Logger:    logger,
		PlanID:    cfg.StripePlanID,
		Expiry:    cfg.PaymentExpiry,
	})
	if err != nil {
		return app{}, cleanup, err
	}

	trigger, err := convert.New(convert.Dependencies{
		Store:     store,
		Flow:      flow,
		Logger:    logger,
		Threshold: cfg.ConvertThreshold,
	})
	if err != nil {
		return app{}, cleanup, err
	}

	var generator session.Generator
	if cfg.GeminiAPIKey != "" {
		backend, err := generation.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, int32(cfg.GenMaxTokens))
		if err != nil {
			return app{}, cleanup, err
		}
		generator, err = generation.NewReliable(backend, logger, cfg.GenTimeout, uint64(cfg.GenMaxRetries))
		if err != nil {
			return app{}, cleanup, err
		}
	} else {
		logger.Warn("no gemini key configured, replies are canned")
		generator = devGenerator{}
	}

	runner := enrichment.NewRunner(enrichment.SummaryEnricher{
		Store:     store,
		Generator: generator,
	}, logger, cfg.EnrichmentTimeout)

	return app{
		deps: gatewayserver.Dependencies{
			Store:      store,
			Flow:       flow,
			Trigger:    trigger,
			Generator:  generator,
			Screener:   screening.NewRuleScreener(),
			Enrichment: runner,
		},
		enrichment: runner,
	}, cleanup, nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "kindline-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "kindline-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
