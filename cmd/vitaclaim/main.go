package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/api"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/chain"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/claims"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/config"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/issuer"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/observability"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/registry"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/store"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/verifier"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

const blockInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "vitaclaim",
		ServiceVersion: "1.0.0",
		Environment:    os.Getenv("ENVIRONMENT"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        os.Getenv("OTLP_ENDPOINT") != "",
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	clock := chain.NewTickingClock(1, blockInterval)

	// Treasury: postgres when configured, in-memory book otherwise.
	var tr treasury.Treasury
	if cfg.PostgresURL != "" {
		pg, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		tr = treasury.NewPostgresTreasury(pg)
		logger.Info("treasury backend", "driver", "postgres")
	} else {
		tr = treasury.NewBook().WithClock(clock)
		logger.Warn("treasury backend is in-memory; balances reset on restart")
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	archive, err := store.NewSQLitePipelineStore(db)
	if err != nil {
		return err
	}

	plans, err := registry.LoadPlanPack(cfg.PlanPackPath)
	if err != nil {
		return err
	}

	profiles := registry.NewMemProfiles()
	logs, err := registry.NewSQLiteLogStore(db)
	if err != nil {
		return err
	}

	ver := verifier.New(verifier.Config{
		Admin:               cfg.Admin,
		MaxPeriods:          cfg.MaxPeriods,
		VerificationFee:     cfg.VerificationFee,
		ComplianceThreshold: cfg.ComplianceThreshold,
	}, plans, profiles, logs, tr, clock)

	iss := issuer.New(issuer.Config{
		Admin:       cfg.Admin,
		MaxProofs:   cfg.MaxProofs,
		ProofFee:    cfg.ProofFee,
		ProofExpiry: cfg.ProofExpiry,
	}, ver, tr, clock)

	set := claims.New(claims.Config{
		Admin:     cfg.Admin,
		MaxClaims: cfg.MaxClaims,
		ClaimFee:  cfg.ClaimFee,
	}, registry.NewMemInsurers(), iss, tr, clock)

	tokens := api.NewTokenManager(cfg.JWTSecret)
	limiter := api.NewGlobalRateLimiter(20, 40)
	defer limiter.Close()
	server := api.NewServer(ver, iss, set, archive, obs, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(tokens, limiter),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
