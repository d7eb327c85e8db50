package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/fleet-telemetry/internal/api"
	"github.com/Checker-Finance/fleet-telemetry/internal/archive"
	"github.com/Checker-Finance/fleet-telemetry/internal/auth"
	"github.com/Checker-Finance/fleet-telemetry/internal/fleet"
	"github.com/Checker-Finance/fleet-telemetry/internal/httpclient"
	"github.com/Checker-Finance/fleet-telemetry/internal/jobs"
	"github.com/Checker-Finance/fleet-telemetry/internal/poller"
	"github.com/Checker-Finance/fleet-telemetry/internal/publisher"
	"github.com/Checker-Finance/fleet-telemetry/internal/rate"
	internalsecrets "github.com/Checker-Finance/fleet-telemetry/internal/secrets"
	"github.com/Checker-Finance/fleet-telemetry/internal/tokenstore"
	"github.com/Checker-Finance/fleet-telemetry/pkg/config"
	"github.com/Checker-Finance/fleet-telemetry/pkg/logger"
	"github.com/Checker-Finance/fleet-telemetry/pkg/secrets"
	"github.com/Checker-Finance/fleet-telemetry/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infow("starting [fleet-telemetry]...", "api", cfg.APIBaseURL, "token_store", cfg.TokenStore)

	// --- Credential (AWS Secrets Manager when configured, env otherwise) ---
	var (
		provider  secrets.Provider
		credCache *secrets.Cache[auth.Credential]
	)
	stopCleaner := make(chan struct{})
	if cfg.CredentialsSecret != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		provider = awsProvider
		credCache = secrets.NewCache[auth.Credential](cfg.CacheTTL)
		go credCache.StartCleaner(cfg.CleanupFreq, stopCleaner)
	}
	resolver := internalsecrets.NewCredentialResolver(
		logger.Named("secrets"),
		provider,
		credCache,
		cfg.CredentialsSecret,
		auth.Credential{Email: cfg.UserEmail, Password: cfg.Password},
	)
	cred, err := resolver.Resolve(ctx)
	if err != nil {
		logg.Fatalw("failed to resolve fleet credential", "error", err)
	}

	// --- Token store ---
	store, err := tokenstore.Open(ctx, cfg)
	if err != nil {
		logg.Fatalw("failed to open token store", "backend", cfg.TokenStore, "error", err)
	}

	// --- Transport + authenticated executor ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateBurst,
	})
	transport := httpclient.New(
		logger.Named("http"),
		rateMgr,
		&http.Client{Timeout: cfg.HTTPTimeout},
		"fleet",
	)
	executor := auth.NewExecutor(auth.Config{
		BaseURL:    cfg.APIBaseURL,
		Credential: cred,
	}, transport, store, logger.Named("auth"))
	if err := executor.Load(ctx); err != nil {
		logg.Warnw("failed to load persisted tokens; will sign in on first request", "error", err)
	}

	fleetClient := fleet.NewClient(logger.Named("fleet"), executor, cfg.FleetBaseURL())

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	pub, err := publisher.New(nc, cfg.OutboundSubject, cfg.ServiceName, logger.Named("publisher"))
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Reading archive (optional) ---
	var (
		pool     *pgxpool.Pool
		archiver poller.Archiver
	)
	if cfg.DatabaseURL != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logg.Fatalw("failed to open postgres pool", "error", err)
		}
		archiver = archive.NewReadingWriter(pool, logger.Named("archive"), cfg.ServiceName)
	} else {
		logg.Warn("DATABASE_URL not configured; reading archive disabled")
	}

	// --- Background jobs ---
	keeper := jobs.NewTokenKeeper(logger.Named("token_keeper"), executor, cfg.TokenKeeperInterval, cfg.TokenRefreshAhead)
	go keeper.Start(ctx)

	sensorPoller := poller.New(logger.Named("poller"), fleetClient, pub, archiver, cfg.PollSensorIDs, cfg.PollInterval)
	go sensorPoller.Run(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	})

	var storeHealth api.HealthChecker
	if hc, ok := store.(api.HealthChecker); ok {
		storeHealth = hc
	}
	api.RegisterRoutes(app, nc, storeHealth, &api.FleetHandler{
		Logger: logger.Named("api"),
		Fleet:  fleetClient,
	})

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[fleet-telemetry] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"poll_interval", cfg.PollInterval,
		"sensors", len(cfg.PollSensorIDs))

	<-ctx.Done()
	logg.Info("shutting down [fleet-telemetry]...")

	close(stopCleaner)
	sensorPoller.Stop()
	keeper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if pool != nil {
		pool.Close()
	}
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logg.Warnw("store.close_failed", "error", err)
		}
	}
}
