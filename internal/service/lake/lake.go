// Package lake ties the catalogue to the ingestion pipeline: a source file is
// ingested into storage and registered as a table in one call.
package lake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"lakehouse/internal/domain"
	"lakehouse/internal/service/catalogue"
	"lakehouse/internal/service/ingestion"
	"lakehouse/internal/storage"
)

// DefaultConcurrency bounds IngestAll when no limit is given.
const DefaultConcurrency = 4

// IngestRequest names the table to create and the job producing its data.
type IngestRequest struct {
	// Table is the catalogue name. Defaults to the sanitized source stem.
	Table   string
	Options domain.IngestionOptions
}

// IngestResult is the registered table together with the job outcome.
type IngestResult struct {
	Table     *domain.Table
	Ingestion *domain.IngestionResult
}

// Engine is safe for concurrent use.
type Engine struct {
	catalogue *catalogue.Catalogue
	pipeline  *ingestion.Pipeline
	logger    *slog.Logger

	inflight sync.Map // table name -> struct{}
}

// New creates an Engine.
func New(cat *catalogue.Catalogue, pipeline *ingestion.Pipeline, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalogue: cat,
		pipeline:  pipeline,
		logger:    logger.With("component", "lake"),
	}
}

// Catalogue returns the underlying catalogue.
func (e *Engine) Catalogue() *catalogue.Catalogue { return e.catalogue }

// Ingest runs one ingestion job and registers the result as a new table.
//
// The table is registered before any output is written, so a name that is
// already registered, or being ingested by another call, fails with
// *domain.DuplicateTableError without touching storage. A failed write
// removes the registration again. An explicit table name must already be a
// valid storage name.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	name := req.Table
	if name == "" {
		name = storage.SanitizeStem(req.Options.Source)
	} else if clean := storage.SanitizeName(name); clean != name {
		return nil, domain.ErrValidation("table name %q is not a valid storage name (try %q)", name, clean)
	}
	if _, busy := e.inflight.LoadOrStore(name, struct{}{}); busy {
		return nil, &domain.DuplicateTableError{Name: name}
	}
	defer e.inflight.Delete(name)
	if _, exists := e.catalogue.LookupID(name); exists {
		return nil, &domain.DuplicateTableError{Name: name}
	}

	opts := req.Options
	opts.Stem = name
	job, err := e.pipeline.Prepare(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}

	table, err := e.catalogue.CreateTable(ctx, domain.CreateTableRequest{
		Name:        name,
		Schema:      job.Schema,
		Location:    job.Location,
		PartitionBy: job.Options.PartitionBy,
	})
	if err != nil {
		return nil, err
	}

	res, err := e.pipeline.Execute(ctx, job)
	if err != nil {
		err = fmt.Errorf("ingest %s: %w", name, err)
		if rbErr := e.catalogue.DeleteTable(context.WithoutCancel(ctx), table.ID); rbErr != nil {
			e.logger.Error("unregister failed table", "table", name, "id", table.ID, "error", rbErr)
			return nil, errors.Join(err, rbErr)
		}
		return nil, err
	}

	for _, w := range res.Warnings {
		e.logger.Warn("ingestion warning", "table", name, "error", w)
	}
	e.logger.Info("table ingested", "table", name, "id", table.ID, "location", table.Location, "rows", res.Rows)
	return &IngestResult{Table: table, Ingestion: res}, nil
}

// IngestAll ingests every CSV file matching pattern, each into a table named
// after its sanitized stem. At most concurrency jobs run at once. The first
// failure cancels the jobs that have not finished; tables registered before
// that stay registered.
func (e *Engine) IngestAll(ctx context.Context, pattern string, template domain.IngestionOptions, concurrency int) ([]*IngestResult, error) {
	sources, err := ingestion.FindSources(pattern)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, domain.ErrNotFound("no csv files match %q", pattern)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]*IngestResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, src := range sources {
		g.Go(func() error {
			opts := template
			opts.Source = src
			res, err := e.Ingest(gctx, IngestRequest{Options: opts})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return compact(results), err
	}
	return results, nil
}

// Drop removes a table from the catalogue and then deletes its data. The
// catalogue delete stands even when the storage cleanup fails.
func (e *Engine) Drop(ctx context.Context, id int64) error {
	table, err := e.catalogue.GetTable(ctx, id)
	if err != nil {
		return err
	}
	if err := e.catalogue.DeleteTable(ctx, id); err != nil {
		return err
	}

	prefix := storage.DirPrefix(storage.SanitizeName(table.Name))
	if err := e.pipeline.Backend().DeletePrefix(ctx, prefix); err != nil {
		e.logger.Warn("table data cleanup failed", "table", table.Name, "prefix", prefix, "error", err)
		return fmt.Errorf("drop %s: table removed, data cleanup failed: %w", table.Name, err)
	}
	e.logger.Info("table dropped", "table", table.Name, "id", id)
	return nil
}

func compact(results []*IngestResult) []*IngestResult {
	out := make([]*IngestResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ListTables returns every registered table from the catalogue cache.
func (e *Engine) ListTables() []domain.TableEntry { return e.catalogue.ListTables() }

// GetTable returns the full catalogue entry of a table.
func (e *Engine) GetTable(ctx context.Context, id int64) (*domain.Table, error) {
	return e.catalogue.GetTable(ctx, id)
}

// GetSchema returns the decoded schema of a table.
func (e *Engine) GetSchema(ctx context.Context, id int64) (domain.Schema, error) {
	return e.catalogue.GetSchema(ctx, id)
}
