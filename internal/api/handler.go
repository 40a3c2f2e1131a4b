// Package api exposes the lake engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"lakehouse/internal/domain"
	"lakehouse/internal/middleware"
	"lakehouse/internal/service/lake"
)

// Lake is the engine surface used by the handlers.
// Implemented by lake.Engine.
type Lake interface {
	Ingest(ctx context.Context, req lake.IngestRequest) (*lake.IngestResult, error)
	Drop(ctx context.Context, id int64) error
	ListTables() []domain.TableEntry
	GetTable(ctx context.Context, id int64) (*domain.Table, error)
	GetSchema(ctx context.Context, id int64) (domain.Schema, error)
}

var _ Lake = (*lake.Engine)(nil)

// Handler serves the /v1 routes.
type Handler struct {
	lake         Lake
	logger       *slog.Logger
	samplingSize int
	stagingDir   string
}

// NewHandler creates a Handler. samplingSize and stagingDir are the defaults
// for ingest requests that do not set them.
func NewHandler(l Lake, logger *slog.Logger, samplingSize int, stagingDir string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		lake:         l,
		logger:       logger.With("component", "api"),
		samplingSize: samplingSize,
		stagingDir:   stagingDir,
	}
}

// TableJSON is the wire form of a table.
type TableJSON struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Location    string          `json:"location,omitempty"`
	PartitionBy []string        `json:"partition_by,omitempty"`
	Version     string          `json:"version,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	Columns     []domain.Column `json:"columns"`
}

func tableToJSON(t *domain.Table) TableJSON {
	out := TableJSON{
		ID:          t.ID,
		Name:        t.Name,
		Location:    t.Location,
		PartitionBy: t.PartitionBy,
		Version:     t.Version,
		Columns:     t.Schema,
	}
	if out.Columns == nil {
		out.Columns = []domain.Column{}
	}
	if !t.CreatedAt.IsZero() {
		created := t.CreatedAt
		out.CreatedAt = &created
	}
	return out
}

// IngestRequestJSON is the body of POST /v1/ingest.
type IngestRequestJSON struct {
	Table        string   `json:"table"`
	Source       string   `json:"source"`
	Delimiter    string   `json:"delimiter,omitempty"`
	HasHeader    *bool    `json:"has_header,omitempty"`
	SamplingSize int      `json:"sampling_size,omitempty"`
	PartitionBy  []string `json:"partition_by,omitempty"`
}

func (b IngestRequestJSON) toRequest(defaultSampling int, stagingDir string) (lake.IngestRequest, error) {
	opts := domain.DefaultIngestionOptions(b.Source)
	opts.StagingDir = stagingDir
	if defaultSampling > 0 {
		opts.SamplingSize = defaultSampling
	}
	if b.SamplingSize > 0 {
		opts.SamplingSize = b.SamplingSize
	}
	if b.HasHeader != nil {
		opts.HasHeader = *b.HasHeader
	}
	if b.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(b.Delimiter)
		if size != len(b.Delimiter) {
			return lake.IngestRequest{}, domain.ErrValidation("delimiter must be a single character, got %q", b.Delimiter)
		}
		opts.Delimiter = r
	}
	opts.PartitionBy = b.PartitionBy
	return lake.IngestRequest{Table: b.Table, Options: opts}, nil
}

// IngestResponseJSON is the body of a successful ingest.
type IngestResponseJSON struct {
	Table    TableJSON `json:"table"`
	Rows     int64     `json:"rows"`
	Bytes    int64     `json:"bytes"`
	Objects  []string  `json:"objects"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Routes mounts the handlers on r.
func (h *Handler) Routes(r chi.Router, mutating ...func(http.Handler) http.Handler) {
	r.Get("/tables", h.listTables)
	r.Get("/tables/{id}", h.getTable)
	r.Get("/tables/{id}/schema", h.getSchema)
	r.Group(func(r chi.Router) {
		r.Use(mutating...)
		r.Delete("/tables/{id}", h.dropTable)
		r.Post("/ingest", h.ingest)
	})
}

func (h *Handler) listTables(w http.ResponseWriter, _ *http.Request) {
	tables := h.lake.ListTables()
	if tables == nil {
		tables = []domain.TableEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tableID(w, r)
	if !ok {
		return
	}
	t, err := h.lake.GetTable(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToJSON(t))
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tableID(w, r)
	if !ok {
		return
	}
	s, err := h.lake.GetSchema(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if s == nil {
		s = domain.Schema{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": s})
}

func (h *Handler) dropTable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tableID(w, r)
	if !ok {
		return
	}
	if err := h.lake.Drop(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var body IngestRequestJSON
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req, err := body.toRequest(h.samplingSize, h.stagingDir)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.lake.Ingest(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := IngestResponseJSON{
		Table:   tableToJSON(res.Table),
		Rows:    res.Ingestion.Rows,
		Bytes:   res.Ingestion.Bytes,
		Objects: res.Ingestion.Objects,
	}
	for _, warn := range res.Ingestion.Warnings {
		out.Warnings = append(out.Warnings, warn.Error())
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) tableID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid table id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.RequestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, status, err.Error())
}
