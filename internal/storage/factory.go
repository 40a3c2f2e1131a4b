package storage

import (
	"context"
	"log/slog"

	"lakehouse/internal/config"
	"lakehouse/internal/domain"
	"lakehouse/internal/metrics"
)

// New creates the backend selected by cfg.Kind.
func New(ctx context.Context, cfg config.StorageConfig, m *metrics.Metrics, logger *slog.Logger) (Backend, error) {
	b, err := newBackend(ctx, cfg, m, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newBackend(ctx context.Context, cfg config.StorageConfig, m *metrics.Metrics, logger *slog.Logger) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case config.StorageLocal:
		return NewLocalBackend(cfg.LocalRoot, m)
	case config.StorageS3:
		return NewS3Backend(S3Options{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			KeyID:          cfg.S3.KeyID,
			Secret:         cfg.S3.Secret,
			Endpoint:       cfg.S3.Endpoint,
			Prefix:         cfg.S3.Prefix,
			UsePathStyle:   cfg.S3.URLStyle != "vhost",
			ChunkSize:      cfg.ChunkSize,
			PartsPerSecond: cfg.PartsPerSecond,
			Metrics:        m,
			Logger:         logger,
		})
	case config.StorageGCS:
		return NewGCSBackend(ctx, GCSOptions{
			Bucket:    cfg.GCS.Bucket,
			KeyFile:   cfg.GCS.KeyFile,
			Prefix:    cfg.GCS.Prefix,
			ChunkSize: cfg.ChunkSize,
			Metrics:   m,
			Logger:    logger,
		})
	case config.StorageAzure:
		return NewAzureBackend(AzureOptions{
			AccountName: cfg.Azure.AccountName,
			AccountKey:  cfg.Azure.AccountKey,
			Container:   cfg.Azure.Container,
			Endpoint:    cfg.Azure.Endpoint,
			Prefix:      cfg.Azure.Prefix,
			ChunkSize:   cfg.ChunkSize,
			Metrics:     m,
			Logger:      logger,
		})
	default:
		return nil, domain.ErrValidation("unknown storage kind %q", cfg.Kind)
	}
}
