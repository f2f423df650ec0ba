package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gorm.io/gorm"

	"lancechain/config"
	"lancechain/core"
	"lancechain/core/receipts"
	"lancechain/observability/logging"
	telemetry "lancechain/observability/otel"
	"lancechain/rpc"
	"lancechain/services/indexer"
	"lancechain/storage"
)

const serviceName = "lanced"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("LANCE_ENV"))
	if env == "" {
		env = cfg.Log.Env
	}
	logger := logging.Setup(serviceName, env,
		logging.WithLevel(logging.ParseLevel(cfg.Log.Level)),
		logging.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, filepath.Dir(*configFile), env, logger); err != nil {
		logger.Error("lanced exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("lanced stopped")
}

func run(ctx context.Context, cfg *config.Config, baseDir, env string, logger *slog.Logger) error {
	headers := cfg.Telemetry.Headers
	if len(headers) == 0 {
		headers = telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	svc, err := openServices(ctx, cfg, baseDir, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	server, err := rpc.NewServer(svc.node, svc.index, rpc.ServerConfig{
		JWTSecret:         cfg.RPC.JWTSecret,
		Issuer:            cfg.RPC.Issuer,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	if cfg.RPC.JWTSecret == "" {
		logger.Warn("rpc authentication disabled; anyone reaching the endpoint may submit transactions")
	} else {
		logger.Info("rpc authentication enabled", logging.MaskField("jwt_secret", cfg.RPC.JWTSecret))
	}
	return server.Serve(ctx, cfg.RPCAddress)
}

// services groups the stores a running node owns.
type services struct {
	db       *storage.LevelDB
	receipts *receipts.Store
	node     *core.Node
	index    *indexer.Indexer
	indexDB  *gorm.DB
}

func (s *services) Close() {
	if s.indexDB != nil {
		if sqlDB, err := s.indexDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.receipts != nil {
		_ = s.receipts.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func openServices(ctx context.Context, cfg *config.Config, baseDir string, logger *slog.Logger) (*services, error) {
	spec, err := cfg.GenesisSpec(baseDir)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}

	svc := &services{}
	svc.db, err = storage.NewLevelDB(cfg.ChainPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	svc.receipts, err = receipts.Open(cfg.ReceiptsPath(), nil)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("open receipts: %w", err)
	}
	svc.node, err = core.NewNode(svc.db, core.NodeConfig{
		ChainID:  cfg.ChainID,
		Rent:     cfg.RentParams(),
		Genesis:  spec,
		Receipts: svc.receipts,
		Logger:   logger,
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("create node: %w", err)
	}
	logger.Info("node ready",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("chain_id", cfg.ChainID),
		slog.Uint64("height", svc.node.GetHeight()))

	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		if err := svc.attachIndexer(ctx, dsn, logger); err != nil {
			svc.Close()
			return nil, err
		}
	}
	return svc, nil
}

func (s *services) attachIndexer(ctx context.Context, dsn string, logger *slog.Logger) error {
	db, err := indexer.Open(dsn)
	if err != nil {
		return fmt.Errorf("open indexer: %w", err)
	}
	s.indexDB = db
	ix, err := indexer.New(db, s.node)
	if err != nil {
		return fmt.Errorf("create indexer: %w", err)
	}
	indexed, err := ix.Height(ctx)
	if err != nil {
		return fmt.Errorf("inspect indexer: %w", err)
	}
	if height := s.node.GetHeight(); indexed < height {
		logger.Info("rebuilding indexer from ledger state",
			slog.Uint64("indexed_height", indexed),
			slog.Uint64("height", height))
		if err := ix.Rebuild(ctx, s.node); err != nil {
			return fmt.Errorf("rebuild indexer: %w", err)
		}
	}
	s.node.AddCommitHook(ix.HandleReceipt)
	s.index = ix
	return nil
}
