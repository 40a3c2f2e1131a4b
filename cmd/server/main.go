package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lakehouse/internal/api"
	"lakehouse/internal/config"
	"lakehouse/internal/engine"
	"lakehouse/internal/metrics"
	"lakehouse/internal/service/catalogue"
	"lakehouse/internal/service/ingestion"
	"lakehouse/internal/service/lake"
	"lakehouse/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("could not load .env", "error", err)
	}
	if path := os.Getenv("LAKE_CONFIG_FILE"); path != "" {
		return config.LoadFile(path)
	}
	return config.LoadFromEnv()
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn("config", "warning", w)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cat, err := catalogue.Start(ctx, catalogue.Options{
		Path:         cfg.CataloguePath,
		ReadPoolSize: cfg.ReadPoolSize,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("start catalogue: %w", err)
	}
	defer cat.Close() //nolint:errcheck

	backend, err := storage.New(ctx, cfg.Storage, m, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	partitioner, err := engine.NewDuckDBPartitioner(logger)
	if err != nil {
		return err
	}
	defer partitioner.Close() //nolint:errcheck

	pipeline := ingestion.NewPipeline(backend, partitioner, logger).WithMetrics(m)
	eng := lake.New(cat, pipeline, logger)

	router := api.NewRouter(ctx, api.RouterConfig{
		Handler:        api.NewHandler(eng, logger, cfg.SamplingSize, cfg.StagingDir),
		Gatherer:       reg,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "storage", string(backend.Kind()))
		logger.Info("try: curl http://" + curlHostForListenAddr(cfg.ListenAddr) + "/v1/tables")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// curlHostForListenAddr turns a listen address into a host:port a local
// client can dial. Wildcard and empty hosts become localhost.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost" + config.DefaultListenAddr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
