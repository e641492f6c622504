// Package main is the entry point for the swapd VMM-swap policy daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantix-kvm/swapd/internal/config"
	"github.com/quantix-kvm/swapd/internal/controller"
	"github.com/quantix-kvm/swapd/internal/engine"
	"github.com/quantix-kvm/swapd/internal/monitor"
	"github.com/quantix-kvm/swapd/internal/registry"
	"github.com/quantix-kvm/swapd/internal/repository/etcd"
	"github.com/quantix-kvm/swapd/internal/repository/memory"
	"github.com/quantix-kvm/swapd/internal/repository/postgres"
	redisrepo "github.com/quantix-kvm/swapd/internal/repository/redis"
	"github.com/quantix-kvm/swapd/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("swapd VMM-swap policy daemon")
		println("Version:", version)
		println("Commit:", commit)
		println("Build Date:", buildDate)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		println("Failed to load config:", err.Error())
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting swapd",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Swap controller: dry run unless a control command is configured.
	var swapCtl engine.SwapController
	if cfg.Engine.ControlCommand != "" {
		swapCtl = controller.NewCommandController(cfg.Engine.ControlCommand, logger)
	} else {
		logger.Warn("No control command configured, swap decisions will not be applied")
		swapCtl = controller.NewDryRunController(logger)
	}

	healthChecks := map[string]server.HealthChecker{}

	// Audit trail is best effort: without PostgreSQL it is kept in memory
	// and lost on restart.
	var events engine.EventRepository
	var eventLister server.EventLister
	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL unavailable, keeping audit trail in memory", zap.Error(err))
		repo := memory.NewSwapEventRepository()
		events = repo
		eventLister = repo
	} else {
		defer db.Close()
		repo := postgres.NewSwapEventRepository(db, logger)
		events = repo
		eventLister = repo
		healthChecks["postgres"] = db
	}

	// History persistence is best effort: history restarts empty without it.
	var historyStore engine.HistoryStore
	redisStore, err := redisrepo.NewHistoryStore(cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, swap history will not survive restarts", zap.Error(err))
	} else {
		defer redisStore.Close()
		historyStore = redisStore
		healthChecks["redis"] = redisStore
	}

	// The VM registry and leader election live in etcd; without it there is
	// nothing to manage.
	etcdClient, err := etcd.NewClient(cfg.Etcd, logger)
	if err != nil {
		logger.Fatal("Failed to connect to etcd", zap.Error(err))
	}
	defer etcdClient.Close()
	healthChecks["etcd"] = etcdClient

	leader, err := etcdClient.CampaignForLeader(ctx, "swapd")
	if err != nil {
		logger.Fatal("Failed to start leader election", zap.Error(err))
	}
	defer leader.Resign(context.Background())

	sampler := monitor.NewHostMemorySampler(logger)
	eng := engine.NewEngine(cfg.Engine, swapCtl, events, historyStore, sampler, leader, logger)

	watcher := registry.NewWatcher(etcdClient, eng, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("VM registry watcher failed", zap.Error(err))
			cancel()
		}
	}()

	go eng.Start(ctx)

	srv := server.New(cfg.Server, healthChecks, eventLister, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Goodbye!")
}

// setupLogger configures the zap logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}

	return logger
}
