package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"lakehouse/internal/config"
	"lakehouse/internal/engine"
	"lakehouse/internal/service/catalogue"
	"lakehouse/internal/service/ingestion"
	"lakehouse/internal/service/lake"
	"lakehouse/internal/storage"
)

// engineOpener builds a lake engine from the flags resolved on the root command.
type engineOpener struct {
	configFile *string
	envFile    *string
	verbose    *bool
}

// session is an open engine plus the configuration it was built from.
type session struct {
	cfg    *config.Config
	engine *lake.Engine
	closer func() error
}

func (s *session) Close() error { return s.closer() }

func (o *engineOpener) loadConfig() (*config.Config, error) {
	if *o.envFile != "" {
		if err := config.LoadDotEnv(*o.envFile); err != nil {
			return nil, err
		}
	}
	if *o.configFile != "" {
		return config.LoadFile(*o.configFile)
	}
	return config.LoadFromEnv()
}

func (o *engineOpener) open(ctx context.Context, logOut io.Writer) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.SlogLevel()
	if *o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	for _, w := range cfg.Warnings {
		logger.Debug("config", "warning", w)
	}

	cat, err := catalogue.Start(ctx, catalogue.Options{
		Path:         cfg.CataloguePath,
		ReadPoolSize: cfg.ReadPoolSize,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	backend, err := storage.New(ctx, cfg.Storage, nil, logger)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}

	partitioner, err := engine.NewDuckDBPartitioner(logger)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}

	pipeline := ingestion.NewPipeline(backend, partitioner, logger)
	return &session{
		cfg:    cfg,
		engine: lake.New(cat, pipeline, logger),
		closer: func() error {
			return errors.Join(partitioner.Close(), cat.Close())
		},
	}, nil
}
