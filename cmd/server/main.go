package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/isola513i/hari-hr-system/internal/adapters/repository/memory"
	"github.com/isola513i/hari-hr-system/internal/adapters/repository/postgres"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	"github.com/isola513i/hari-hr-system/internal/platform/config"
	pg "github.com/isola513i/hari-hr-system/internal/platform/db/postgres"
	"github.com/isola513i/hari-hr-system/internal/platform/logging"
	"github.com/isola513i/hari-hr-system/internal/platform/metrics"
	"github.com/isola513i/hari-hr-system/internal/platform/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level)
	log.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		repo hierarchy.Repository
		tx   hierarchy.TransactionManager
	)
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory node store; data is lost on exit")
		repo = memory.NewNodeRepository()
	default:
		pool, err := pg.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to initialize database pool", "err", err)
		}
		defer pool.Close()
		repo = postgres.NewNodeRepository(pool)
		tx = pg.NewTransactionManager(pool)
	}

	svc := hierarchy.NewService(repo, nil, tx,
		hierarchy.WithAvatarResolver(hierarchy.AvatarResolver{
			BaseURL:        cfg.Avatar.BaseURL,
			PlaceholderURL: cfg.Avatar.PlaceholderURL,
		}),
		hierarchy.WithRecorder(m),
	)

	srv := server.New(server.Options{
		GRPCAddr: cfg.Server.ListenAddr,
		HTTPAddr: cfg.HTTP.ListenAddr,
	}, svc, logger, m)

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server stopped with error", "err", err)
	}
	logger.Info("server stopped")
}
