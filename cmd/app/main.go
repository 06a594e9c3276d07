package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"papas-bot/internal/cache"
	"papas-bot/internal/config"
	"papas-bot/internal/convo"
	"papas-bot/internal/httpserver"
	"papas-bot/internal/logging"
	"papas-bot/internal/metrics"
	"papas-bot/internal/repo"
	"papas-bot/internal/twilio"
	"papas-bot/internal/wa"
	"papas-bot/migrations"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting papas-bot", "env", cfg.AppEnv, "db_driver", cfg.DBDriver, "provider", cfg.MessagingProvider)

	if cfg.PublicBaseURL != "" {
		webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhook"
		logger.Info("public base url configured", "base_url", cfg.PublicBaseURL, "webhook_url", webhookURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	if cfg.SchemaAutoUpgrade {
		if err := repository.EnsureProofColumns(ctx); err != nil {
			logger.Warn("could not add proof columns, continuing with detected schema", "error", err)
		}
	}
	caps, err := repository.InspectSchema(ctx)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	logger.Info("schema capabilities detected", "comprobante_recibido", caps.ProofReceived, "comprobante_url", caps.ProofURL)

	persistence := repo.NewAdapter(repository, caps, logger, metricRegistry)

	sessions, closeSessions, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	defer closeSessions()

	engineCfg := convo.EngineConfig{
		Payment: convo.PaymentDetails{
			BusinessName: cfg.PaymentBusinessName,
			Bank:         cfg.PaymentBank,
			Account:      cfg.PaymentAccount,
			Holder:       cfg.PaymentHolder,
			RUT:          cfg.PaymentRUT,
			Email:        cfg.PaymentEmail,
		},
		OpTimeout: cfg.OpTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	handlers := httpserver.Handlers{}

	switch cfg.MessagingProvider {
	case config.ProviderWhatsApp:
		waClient, err := wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
			Metrics:   metricRegistry,
		}, logger)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()

		engine := convo.New(sessions, persistence, waClient, metricRegistry, logger, engineCfg)
		waClient.SetMessageHandler(engine)
		g.Go(func() error {
			if err := waClient.Start(gctx); err != nil {
				return fmt.Errorf("whatsapp client: %w", err)
			}
			return nil
		})
	default:
		twilioClient := twilio.New(twilio.Config{
			BaseURL:    cfg.TwilioBaseURL,
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFromNumber,
			Timeout:    cfg.TwilioTimeout,
		}, logger, metricRegistry)

		engine := convo.New(sessions, persistence, twilioClient, metricRegistry, logger, engineCfg)
		handlers.Webhook = twilio.NewWebhookHandler(logger, metricRegistry, twilio.WebhookConfig{
			AuthToken:         cfg.TwilioAuthToken,
			ValidateSignature: cfg.TwilioValidateSignature,
			PublicBaseURL:     cfg.PublicBaseURL,
		}, engine)
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, handlers, httpserver.Dependencies{
		Reports:  persistence,
		Database: repository,
	}, cfg.PublicBasePath)

	g.Go(httpSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (repo.Repository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return repo.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	default:
		return repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	}
}

func openSessionStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (convo.SessionStore, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		logger.Info("using in-memory session store")
		return convo.NewMemoryStore(), func() {}, nil
	}

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}
	if err := redisClient.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	return cache.NewSessionStore(redisClient, cfg.SessionTTL, logger), closeFn, nil
}
