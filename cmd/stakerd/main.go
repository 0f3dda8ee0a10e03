package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stakerchain/config"
	"stakerchain/core/events"
	"stakerchain/core/state"
	"stakerchain/crypto"
	"stakerchain/native/beneficiary"
	"stakerchain/native/staker"
	"stakerchain/observability"
	"stakerchain/observability/logging"
	telemetry "stakerchain/observability/otel"
	"stakerchain/rpc"
	"stakerchain/rpc/modules"
	"stakerchain/storage"
	"stakerchain/storage/eventstore"
)

const serviceName = "stakerd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to stakerd configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfgPath); err != nil {
		log.Fatalf("stakerd: %v", err)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv("STAKER_ENV")); override != "" {
		env = override
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	params, err := cfg.PoolParams()
	if err != nil {
		return err
	}

	telemetryCfg := telemetry.WithEnv(telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"staker.pool":        crypto.FormatAddress(params.Address),
			"staker.beneficiary": crypto.FormatAddress(params.Beneficiary),
		},
	})
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()
	if telemetryCfg.Enabled() {
		attrs := []any{slog.String("endpoint", telemetryCfg.Endpoint)}
		for key, value := range telemetryCfg.Headers {
			attrs = append(attrs, logging.MaskField(key, value))
		}
		logger.Info("telemetry exporters enabled", attrs...)
	}

	allocs, err := cfg.GenesisAllocs()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	genesis := make([]state.Alloc, 0, len(allocs))
	for _, alloc := range allocs {
		genesis = append(genesis, state.Alloc{Address: alloc.Address, Balance: alloc.Balance})
	}
	applied, err := manager.ApplyGenesis(genesis)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", slog.Int("accounts", len(genesis)))
	}

	recorder := events.NewLog(cfg.Events.Capacity)
	emitter := events.MultiEmitter{recorder, observability.Events()}
	var history modules.History
	if dsn := strings.TrimSpace(cfg.Events.ArchiveDSN); dsn != "" {
		archive, err := eventstore.Open(dsn, logger)
		if err != nil {
			return fmt.Errorf("open event archive: %w", err)
		}
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Warn("event archive close failed", slog.String("error", err.Error()))
			}
		}()
		emitter = append(emitter, archive)
		history = archive
		logger.Info("event archive enabled", logging.MaskDSN("dsn", dsn))
	}

	engine, err := staker.NewEngine(manager, beneficiary.New(manager, params.Beneficiary), staker.Params{
		Address:        params.Address,
		DeadlineOffset: params.Deadline,
		Threshold:      params.Threshold,
	}, staker.WithEmitter(emitter))
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}

	snapshot, err := engine.Snapshot()
	if err != nil {
		return fmt.Errorf("read pool: %w", err)
	}
	observability.Staker().SetPool(snapshot.Balance, snapshot.Status == staker.StatusCompleted)
	logger.Info("pool ready",
		slog.String("address", crypto.FormatAddress(snapshot.Address)),
		slog.String("beneficiary", crypto.FormatAddress(snapshot.Beneficiary)),
		slog.Int64("deadline", snapshot.Deadline),
		slog.String("threshold", snapshot.Threshold.String()),
		slog.String("status", snapshot.Status.String()),
	)
	if !cfg.Auth.Enabled {
		logger.Warn("rpc auth disabled; staker_execute and staker_withdraw are open to any caller")
	}

	server := rpc.NewServer(rpc.Config{
		Engine:  engine,
		Events:  recorder,
		Archive: history,
		Logger:  logger,
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		},
		Auth: rpc.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			Scope:      cfg.Auth.Scope,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		ServiceName: serviceName,
	})
	if err := server.Serve(ctx, cfg.RPCAddress); err != nil {
		return err
	}
	logger.Info("stakerd stopped")
	return nil
}
