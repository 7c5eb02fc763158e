package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"peerescrow/config"
	"peerescrow/core/events"
	"peerescrow/core/state"
	"peerescrow/crypto"
	"peerescrow/native/escrow"
	"peerescrow/observability"
	"peerescrow/observability/logging"
	telemetry "peerescrow/observability/otel"
	"peerescrow/rpc"
	"peerescrow/storage"
)

const envOverride = "ESCROW_ENV"

func main() {
	configFile := flag.String("config", "./escrowd.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if env := strings.TrimSpace(os.Getenv(envOverride)); env != "" {
		cfg.Log.Env = env
	}
	logger, closer := logging.SetupWithOptions("escrowd", cfg.Log.Env, logging.Options{
		File:       cfg.ResolvePath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer closer.Close()

	n, err := newNode(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		return err
	}
	defer n.Close()

	logger.Info("escrowd started",
		slog.String("program", n.engine.Deriver().ProgramID().String()),
		slog.Bool("paused", cfg.Pauses.Escrow),
		slog.Bool("telemetry", cfg.Telemetry.Enabled))
	err = n.server.ListenAndServe(ctx, cfg.RPC.ListenAddress)
	logger.Info("escrowd stopped")
	return err
}

// telemetryShutdownTimeout bounds the final exporter flush on Close.
const telemetryShutdownTimeout = 5 * time.Second

// node owns every long-lived resource of the daemon.
type node struct {
	db        storage.Database
	audit     *rpc.AuditStore
	engine    *escrow.Engine
	recorder  *events.Recorder
	metrics   *observability.Metrics
	server    *rpc.Server
	telemetry telemetry.ShutdownFunc
}

func newNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	program, err := cfg.Program()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	allocs, err := cfg.Allocations()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	n := &node{}
	if cfg.Telemetry.Enabled {
		n.telemetry, err = telemetry.Init(context.Background(), cfg.TelemetryConfig("escrowd"))
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		logger.Info("telemetry exporters enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			slog.Bool("traces", cfg.Telemetry.Traces),
			slog.Bool("metrics", cfg.Telemetry.Metrics))
	}
	n.db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	manager := state.NewManager(n.db)
	applied, err := manager.ApplyGenesis(allocs)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis allocations applied", slog.Int("count", len(allocs)))
	}

	n.engine = escrow.NewEngine(manager, crypto.NewDeriver(program))
	if err := n.engine.SetPolicy(policy); err != nil {
		n.Close()
		return nil, err
	}
	n.engine.SetPauses(cfg.PauseSet())

	n.metrics = observability.NewMetrics()
	n.recorder = events.NewRecorder(events.DefaultRecorderCapacity)
	n.engine.SetEmitter(events.MultiEmitter{n.recorder, observability.NewEventSink(logger, n.metrics)})

	n.audit, err = rpc.NewAuditStore(cfg.ResolvePath(cfg.RPC.AuditDBPath))
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	n.server = rpc.NewServer(rpc.Deps{
		Engine:     n.engine,
		Dispatcher: escrow.NewDispatcher(n.engine, cfg.MaxRequestAge()),
		Recorder:   n.recorder,
		Audit:      n.audit,
		Metrics:    n.metrics,
		Logger:     logger,
	}, rpc.ServerConfig{
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	})
	return n, nil
}

func (n *node) Close() error {
	var errs []error
	if n.audit != nil {
		errs = append(errs, n.audit.Close())
	}
	if n.db != nil {
		errs = append(errs, n.db.Close())
	}
	if n.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		errs = append(errs, n.telemetry(ctx))
		cancel()
	}
	return errors.Join(errs...)
}
