package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"lakehouse/internal/domain"
	"lakehouse/internal/metrics"
	"lakehouse/internal/storage"
)

// Pipeline runs ingestion jobs against one storage backend. A Pipeline holds
// no per-job state and may run several jobs concurrently.
type Pipeline struct {
	backend     storage.Backend
	partitioner domain.Partitioner
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewPipeline creates a Pipeline. partitioner may be nil when no job
// requests partitioning.
func NewPipeline(backend storage.Backend, partitioner domain.Partitioner, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		backend:     backend,
		partitioner: partitioner,
		logger:      logger.With("component", "ingestion"),
	}
}

// WithMetrics attaches job metrics.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Backend returns the storage backend jobs are written to.
func (p *Pipeline) Backend() storage.Backend { return p.backend }

// Job is an ingestion whose schema and destination are settled but whose
// output has not been written yet.
type Job struct {
	Options domain.IngestionOptions
	// Schema is the cleaned schema the output is written with.
	Schema domain.Schema
	// Stem is the storage directory the output is written below.
	Stem string
	// Location is the URI the output will be reachable at.
	Location string
}

// Run ingests one source file. It is Prepare followed by Execute.
//
// The unpartitioned output is stored at stem/stem.parquet. A partitioned
// output replaces everything under stem/ with one or more files per
// partition value combination. Partition columns are checked against the
// cleaned schema before anything is written.
func (p *Pipeline) Run(ctx context.Context, opts domain.IngestionOptions) (*domain.IngestionResult, error) {
	job, err := p.Prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, job)
}

// Prepare validates opts, infers and cleans the schema and resolves the
// output location. It reads the source but never touches storage.
func (p *Pipeline) Prepare(ctx context.Context, opts domain.IngestionOptions) (*Job, error) {
	opts = opts.WithDefaults()
	job, err := p.prepare(ctx, opts)
	if err != nil {
		p.metrics.ObserveIngest(metrics.StatusFailed, 0)
		p.logger.Warn("ingestion failed", "source", opts.Source, "error", err)
		return nil, err
	}
	return job, nil
}

func (p *Pipeline) prepare(ctx context.Context, opts domain.IngestionOptions) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	inferred, err := InferSchema(ctx, opts)
	if err != nil {
		return nil, err
	}
	cleaned := CleanSchema(inferred)

	if opts.Partitioned() {
		if err := ValidatePartitions(cleaned, opts.PartitionBy); err != nil {
			return nil, err
		}
		if p.partitioner == nil {
			return nil, domain.ErrValidation("partitioning requested but no query engine is configured")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stem := storage.SanitizeStem(opts.Source)
	if opts.Stem != "" {
		stem = storage.SanitizeName(opts.Stem)
	}
	job := &Job{Options: opts, Schema: cleaned, Stem: stem}
	if opts.Partitioned() {
		job.Location = p.backend.URI(storage.DirPrefix(stem))
	} else {
		job.Location = p.backend.URI(singleKey(stem))
	}
	return job, nil
}

// Execute converts and writes the output of a prepared job.
func (p *Pipeline) Execute(ctx context.Context, job *Job) (*domain.IngestionResult, error) {
	start := time.Now()
	var (
		res *domain.IngestionResult
		err error
	)
	if job.Options.Partitioned() {
		res, err = p.runPartitioned(ctx, job.Options, job.Stem, job.Schema)
	} else {
		res, err = p.runSingle(ctx, job.Options, job.Stem, job.Schema)
	}
	if err != nil {
		p.metrics.ObserveIngest(metrics.StatusFailed, 0)
		p.logger.Warn("ingestion failed", "source", job.Options.Source, "error", err)
		return nil, err
	}
	p.metrics.ObserveIngest(metrics.StatusSucceeded, res.Rows)
	p.logger.Info("ingestion finished",
		"source", job.Options.Source,
		"location", res.Location,
		"objects", len(res.Objects),
		"rows", res.Rows,
		"bytes", res.Bytes,
		"elapsed", time.Since(start),
	)
	return res, nil
}

func singleKey(stem string) string {
	return storage.ObjectKey(stem, stem+".parquet")
}

func (p *Pipeline) runSingle(ctx context.Context, opts domain.IngestionOptions, stem string, s domain.Schema) (*domain.IngestionResult, error) {
	var buf bytes.Buffer
	rows, err := Convert(ctx, opts, s, &buf)
	if err != nil {
		return nil, err
	}

	key := singleKey(stem)
	if err := p.backend.DeleteIfExists(ctx, key); err != nil {
		return nil, err
	}
	if err := p.backend.Put(ctx, key, buf.Bytes()); err != nil {
		return nil, err
	}

	return &domain.IngestionResult{
		Schema:   s,
		Location: p.backend.URI(key),
		Objects:  []string{key},
		Rows:     rows,
		Bytes:    int64(buf.Len()),
	}, nil
}

func (p *Pipeline) runPartitioned(ctx context.Context, opts domain.IngestionOptions, stem string, s domain.Schema) (res *domain.IngestionResult, err error) {
	staging, err := newStagingDir(opts.StagingDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		cleanupErr := os.RemoveAll(staging)
		if cleanupErr == nil {
			return
		}
		warning := domain.ErrIngestion(domain.StagingCleanupFailed, cleanupErr)
		p.logger.Warn("staging cleanup failed", "dir", staging, "error", cleanupErr)
		if res != nil {
			res.Warnings = append(res.Warnings, warning)
		}
	}()

	srcDir := filepath.Join(staging, "src")
	outDir := filepath.Join(staging, "out")
	if err := os.Mkdir(srcDir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	rows, err := stageParquet(ctx, opts, s, filepath.Join(srcDir, stem+".parquet"))
	if err != nil {
		return nil, err
	}

	if err := p.partitioner.Partition(ctx, filepath.Join(srcDir, "*.parquet"), outDir, opts.PartitionBy); err != nil {
		return nil, fmt.Errorf("partition %s: %w", stem, err)
	}

	files, err := listFiles(outDir)
	if err != nil {
		return nil, fmt.Errorf("list partition output: %w", err)
	}

	prefix := storage.DirPrefix(stem)
	if err := p.backend.DeletePrefix(ctx, prefix); err != nil {
		return nil, err
	}

	res = &domain.IngestionResult{Schema: s, Location: p.backend.URI(prefix), Rows: rows}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(outDir, rel))
		if err != nil {
			return nil, fmt.Errorf("read partition file: %w", err)
		}
		key := storage.PartitionKey(stem, rel)
		if err := p.backend.Put(ctx, key, data); err != nil {
			return nil, err
		}
		res.Objects = append(res.Objects, key)
		res.Bytes += int64(len(data))
	}
	return res, nil
}

// newStagingDir creates a fresh private directory below base (or the system
// temp dir).
func newStagingDir(base string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "lake-stage-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

func stageParquet(ctx context.Context, opts domain.IngestionOptions, s domain.Schema, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}
	rows, err := Convert(ctx, opts, s, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		return 0, fmt.Errorf("close staging file: %w", closeErr)
	}
	return rows, err
}

// listFiles returns the slash-separated paths of regular files below root,
// sorted.
func listFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	sort.Strings(out)
	return out, err
}
