package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/osvaldoandrade/riskdesk/pkg/app"
	_ "github.com/osvaldoandrade/riskdesk/pkg/auth/hmacjwt" // Register HS256 JWT auth provider
	_ "github.com/osvaldoandrade/riskdesk/pkg/auth/jwks"    // Register JWKS (RS256) auth provider
	_ "github.com/osvaldoandrade/riskdesk/pkg/auth/static"  // Register static token auth provider (dev/local)
	"github.com/osvaldoandrade/riskdesk/pkg/config"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfgPath := getenv("RISKDESK_CONFIG_PATH", "")

	cfg, err := config.LoadConfigOptional(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] invalid config:", err)
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR] init app:", err)
		os.Exit(1)
	}
	app.SetupMappings(application)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           application.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		application.Logger.Info("riskdesk gateway listening", "addr", addr, "simulator", cfg.Simulator.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "[ERROR] http server:", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	// Cancels in-flight runs, drains webhooks and flushes the trace exporter.
	if err := application.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "[WARN] shutdown:", err)
	}
}
