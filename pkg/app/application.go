package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/agentapi"
	"github.com/osvaldoandrade/riskdesk/internal/logging"
	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/middleware"
	"github.com/osvaldoandrade/riskdesk/internal/providers"
	"github.com/osvaldoandrade/riskdesk/internal/ratelimit"
	"github.com/osvaldoandrade/riskdesk/internal/repository"
	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/internal/tracing"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/auth"
	"github.com/osvaldoandrade/riskdesk/pkg/config"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
	"github.com/osvaldoandrade/riskdesk/pkg/persistence"
	_ "github.com/osvaldoandrade/riskdesk/pkg/persistence/memory" // Register in-memory run archive
	_ "github.com/osvaldoandrade/riskdesk/pkg/persistence/redis"  // Register Redis run archive

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Logger      *slog.Logger
	Redis       *redis.Client
	Catalog     []domain.Feature
	Sessions    services.SessionService
	Runs        services.RunArchiveService
	Archive     persistence.PluginPersistence
	Callback    services.RunCallbackService
	Simulator   services.SimulatorService
	Validator   auth.Validator
	RateLimiter ratelimit.Limiter

	TracingShutdown func(context.Context) error

	stopCleanup context.CancelFunc
	closeLog    func() error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom bearer token validator
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

// WithRedisClient replaces the client built from RedisAddr.
func WithRedisClient(rdb *redis.Client) ApplicationOption {
	return func(app *Application) error {
		app.Redis = rdb
		return nil
	}
}

func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

// WithCatalog replaces the built-in feature catalogue.
func WithCatalog(catalog []domain.Feature) ApplicationOption {
	return func(app *Application) error {
		app.Catalog = catalog
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg, Catalog: domain.DefaultCatalog()}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Logger == nil {
		logger, closeLog := logging.New(os.Stdout, logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
			Attrs:  []any{"service", "riskdesk", "env", cfg.Env},
		})
		app.Logger = logger
		app.closeLog = closeLog
		slog.SetDefault(logger)
	}
	logger := app.Logger

	shutdown, err := tracing.Setup(context.Background(), cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	if app.Redis == nil {
		app.Redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	}
	app.RateLimiter = ratelimit.NewTokenBucketLimiter(app.Redis)
	metrics.RegisterRedisCollector(app.Redis, logger)

	app.Callback = services.NewRunCallbackService(logger, services.RunCallbackOptions{
		URL:         cfg.Webhook.URL,
		Secret:      cfg.Webhook.Secret,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Webhook.BaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.Webhook.MaxDelaySeconds) * time.Second,
		Limiter:     app.RateLimiter,
		Bucket:      ratelimit.Bucket{RequestsPerMinute: cfg.Webhook.RequestsPerMinute, BurstSize: cfg.Webhook.RequestsPerMinute},
	})
	archiveCfg := json.RawMessage(strings.TrimSpace(cfg.Archive.Config))
	store, err := persistence.NewPersistence(
		persistence.ProviderConfig{Type: cfg.Archive.Provider, Config: archiveCfg},
		persistence.PluginConfig{RecentLimit: cfg.RecentResultsLimit, Redis: app.Redis},
	)
	if err != nil {
		return nil, fmt.Errorf("run archive: %w", err)
	}
	app.Archive = store
	app.Runs = services.NewRunArchiveService(store.RunStorage(), app.Callback, logger)

	clients := AgentClients(cfg, logger)
	wcfg := WorkflowConfig(cfg)
	catalog := app.Catalog
	app.Sessions = services.NewSessionService(func() (*workflow.Board, error) {
		return workflow.NewBoard(catalog, wcfg, clients,
			workflow.WithLogger(logger),
			workflow.WithObserver(app.Runs.Observe),
		)
	}, logger, time.Now)

	if cfg.Simulator.Enabled {
		jobs := repository.NewJobRepository(app.Redis, time.Duration(cfg.Simulator.JobTTLSeconds)*time.Second)
		app.Simulator = services.NewSimulatorService(jobs, cfg.Simulator.Token, cfg.Simulator.CompleteAfterPolls, logger, time.Now)
	}

	cleanup := services.NewSessionCleanupService(app.Sessions, app.Runs, logger,
		cfg.SessionCleanupIntervalSeconds, cfg.SessionIdleTTLSeconds, cfg.ResultRetentionHours)
	cleanupCtx, stop := context.WithCancel(context.Background())
	app.stopCleanup = stop
	go cleanup.Start(cleanupCtx)

	// Create the default validator from config if not provided
	if app.Validator == nil {
		if strings.TrimSpace(cfg.AuthConfig) != "" {
			validator, err := auth.NewValidator(auth.ParseProviderConfig(cfg.AuthProvider, cfg.AuthConfig))
			if err != nil {
				return nil, err
			}
			app.Validator = validator
		} else {
			logger.Warn("no auth config; gateway routes will reject every request", "provider", cfg.AuthProvider)
		}
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
		middleware.LoggerMiddleware(logger),
	)
	app.Engine = engine
	return app, nil
}

// WorkflowConfig translates the workflow section of cfg.
func WorkflowConfig(cfg *config.Config) workflow.Config {
	w := cfg.Workflow
	return workflow.Config{
		PollInterval:             w.PollInterval(),
		BackoffPolicy:            w.BackoffPolicy,
		BackoffBase:              time.Duration(w.BackoffBaseSeconds) * time.Second,
		BackoffMax:               time.Duration(w.BackoffMaxSeconds) * time.Second,
		MaxTransientPollFailures: w.MaxTransientPollFailures,
		FailOnReportedFailure:    w.ReportedFailureIsTerminal(),
		EnforceDeadline:          w.EnforceDeadline,
		DeadlineGrace:            time.Duration(w.DeadlineGraceSeconds) * time.Second,
		IdentifierBytes:          w.IdentifierBytes,
	}
}

// AgentClients builds the submission, payment and status clients for the
// configured agent.
func AgentClients(cfg *config.Config, logger *slog.Logger) workflow.Clients {
	opts := []agentapi.Option{
		agentapi.WithHTTPClient(&http.Client{Timeout: cfg.Agent.Timeout()}),
		agentapi.WithLogger(logger),
	}
	return workflow.Clients{
		Submitter: agentapi.NewSubmissionClient(cfg.Agent.SubmitURL, opts...),
		Payer:     agentapi.NewPaymentClient(cfg.Agent.PurchaseURL, cfg.Agent.Payment, opts...),
		Poller:    agentapi.NewStatusPoller(cfg.Agent.StatusURL, opts...),
		Payment:   cfg.Agent.Payment,
	}
}

// Close stops background work, cancels every run and flushes telemetry.
func (a *Application) Close(ctx context.Context) error {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	a.Sessions.Shutdown()
	if a.Callback != nil {
		a.Callback.Close()
	}
	var errs []error
	if a.TracingShutdown != nil {
		errs = append(errs, a.TracingShutdown(ctx))
	}
	if a.Archive != nil {
		errs = append(errs, a.Archive.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}
