package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/candlefeed/internal/broker"
	"github.com/rickgao/candlefeed/internal/config"
	"github.com/rickgao/candlefeed/internal/database"
	"github.com/rickgao/candlefeed/internal/ingest"
	"github.com/rickgao/candlefeed/internal/listener"
	"github.com/rickgao/candlefeed/internal/metrics"
	"github.com/rickgao/candlefeed/internal/model"
	"github.com/rickgao/candlefeed/internal/persist"
	"github.com/rickgao/candlefeed/internal/queue"
	"github.com/rickgao/candlefeed/internal/store/mongostore"
	"github.com/rickgao/candlefeed/internal/store/pgstore"
	"github.com/rickgao/candlefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/ingestor.local.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("ingestor failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting ingestor", append(version.LogAttrs(),
		"config", configPath,
		"instance_id", cfg.Instance.ID,
	)...)

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := startProfiler(cfg, logger)
		if err != nil {
			logger.Warn("profiler not started", "error", err)
		} else {
			defer profiler.Stop()
		}
	}

	sources, err := cfg.SourceTable()
	if err != nil {
		return fmt.Errorf("build source table: %w", err)
	}
	persistCfg, err := cfg.PersistConfig()
	if err != nil {
		return err
	}
	listenerCfg, err := cfg.ListenerConfig()
	if err != nil {
		return err
	}
	brokerCfg := cfg.BrokerConfig()
	dial, err := broker.NewDialer(brokerCfg)
	if err != nil {
		return err
	}

	// Connect to store
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	pending := queue.NewBuffer[model.QueuedCandle](cfg.Store.QueueInitialCapacity, cfg.Store.QueueMaxLen)
	m := metrics.New(func() float64 { return float64(pending.Len()) })

	handler := ingest.NewHandler(cfg.IngestConfig(), brokerCfg, dial, pending, m, logger.With("component", "ingest"))
	lst := listener.New(listenerCfg, handler, m, logger.With("component", "listener"))
	if err := lst.Listen(); err != nil {
		return err
	}

	worker := persist.NewWorker(persistCfg, sources, store, pending, m, logger.With("component", "persist"))

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           createHealthHandler(store, pending, m, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The worker outlives ctx so it can drain the queue after the listener stops.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	workerDone := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer pending.Close()
		return lst.Serve(gctx)
	})

	g.Go(func() error {
		defer close(workerDone)
		err := worker.Run(workerCtx)
		if errors.Is(err, context.Canceled) {
			logger.Warn("persistence worker stopped before draining", "pending", pending.Len())
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...", "pending", pending.Len())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		select {
		case <-workerDone:
		case <-shutdownCtx.Done():
			cancelWorker()
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("ingestor running",
		"listen_addr", lst.Addr().String(),
		"broker", brokerCfg.Driver,
		"store", cfg.Store.Driver,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()

	stats := worker.Stats()
	logger.Info("ingestor stopped",
		"inserts", stats.Inserts,
		"dropped", stats.Dropped,
		"pending", pending.Len(),
	)
	return err
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	c := config.IngestorConfig{Log: cfg}
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openStore connects the configured store driver.
func openStore(ctx context.Context, cfg *config.IngestorConfig, logger *slog.Logger) (persist.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		db := cfg.Store.Postgres
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)
		pool, err := database.Connect(ctx, db, "candlefeed "+cfg.Instance.ID)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("database connected")
		return pgstore.New(pool), nil
	default:
		logger.Info("connecting to mongo")
		s, err := mongostore.Connect(ctx, cfg.Store.Mongo.URI)
		if err != nil {
			return nil, err
		}
		logger.Info("mongo connected")
		return s, nil
	}
}

func startProfiler(cfg *config.IngestorConfig, logger *slog.Logger) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Profiling.AppName,
		ServerAddress:   cfg.Profiling.ServerAddress,
		Tags: map[string]string{
			"instance": cfg.Instance.ID,
		},
		Logger: pyroscopeLogger{logger.With("component", "profiler")},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

// pyroscopeLogger routes profiler messages to slog.
type pyroscopeLogger struct {
	l *slog.Logger
}

func (p pyroscopeLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pyroscopeLogger) Debugf(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pyroscopeLogger) Errorf(format string, args ...interface{}) {
	p.l.Warn(fmt.Sprintf(format, args...))
}
