package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"lakehouse/internal/domain"
	"lakehouse/internal/service/lake"
)

// tableView is the printed form of a table.
type tableView struct {
	ID          int64           `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Location    string          `json:"location,omitempty" yaml:"location,omitempty"`
	PartitionBy []string        `json:"partition_by,omitempty" yaml:"partition_by,omitempty"`
	Version     string          `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Columns     []domain.Column `json:"columns" yaml:"columns"`
}

func newTableView(t *domain.Table) tableView {
	v := tableView{
		ID:          t.ID,
		Name:        t.Name,
		Location:    t.Location,
		PartitionBy: t.PartitionBy,
		Version:     t.Version,
		Columns:     t.Schema,
	}
	if v.Columns == nil {
		v.Columns = []domain.Column{}
	}
	if !t.CreatedAt.IsZero() {
		v.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// ingestView is the printed form of one finished ingestion.
type ingestView struct {
	Table    tableView `json:"table" yaml:"table"`
	Rows     int64     `json:"rows" yaml:"rows"`
	Bytes    int64     `json:"bytes" yaml:"bytes"`
	Objects  []string  `json:"objects" yaml:"objects"`
	Warnings []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newIngestView(res *lake.IngestResult) ingestView {
	v := ingestView{
		Table:   newTableView(res.Table),
		Rows:    res.Ingestion.Rows,
		Bytes:   res.Ingestion.Bytes,
		Objects: res.Ingestion.Objects,
	}
	for _, w := range res.Ingestion.Warnings {
		v.Warnings = append(v.Warnings, w.Error())
	}
	return v
}

// ingestFlags are the options shared by ingest and ingest-all.
type ingestFlags struct {
	delimiter    string
	noHeader     bool
	samplingSize int
	partitionBy  []string
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.delimiter, "delimiter", "d", ",", `Field delimiter, a single character or "tab"`)
	cmd.Flags().BoolVar(&f.noHeader, "no-header", false, "Treat the first row as data; columns are named column_1..n")
	cmd.Flags().IntVar(&f.samplingSize, "sampling-size", 0, "Rows sampled for type inference (default from config)")
	cmd.Flags().StringSliceVar(&f.partitionBy, "partition-by", nil, "Partition output by these columns, in order")
}

func (f *ingestFlags) options(cfg sessionDefaults, source string) (domain.IngestionOptions, error) {
	delim, err := parseDelimiter(f.delimiter)
	if err != nil {
		return domain.IngestionOptions{}, err
	}
	opts := domain.DefaultIngestionOptions(source)
	opts.Delimiter = delim
	opts.HasHeader = !f.noHeader
	opts.SamplingSize = cfg.samplingSize
	if f.samplingSize > 0 {
		opts.SamplingSize = f.samplingSize
	}
	opts.PartitionBy = f.partitionBy
	opts.StagingDir = cfg.stagingDir
	return opts, nil
}

type sessionDefaults struct {
	samplingSize int
	stagingDir   string
}

func (s *session) defaults() sessionDefaults {
	return sessionDefaults{samplingSize: s.cfg.SamplingSize, stagingDir: s.cfg.StagingDir}
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if s == "" || size != len(s) {
		return 0, domain.ErrValidation("delimiter must be a single character, got %q", s)
	}
	return r, nil
}

func parseTableID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrValidation("invalid table id %q", arg)
	}
	return id, nil
}

// withSession opens the engine for the duration of fn.
func withSession(cmd *cobra.Command, opener *engineOpener, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := opener.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck
	return fn(ctx, s)
}

func newIngestCmd(opener *engineOpener) *cobra.Command {
	var (
		flags ingestFlags
		table string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Convert a CSV file to Parquet and register it as a table",
		Long: "Infers a schema from the first rows of the file, writes it as Parquet " +
			"(optionally partitioned) to the configured storage backend and registers the table.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opener, func(ctx context.Context, s *session) error {
				opts, err := flags.options(s.defaults(), args[0])
				if err != nil {
					return err
				}
				res, err := s.engine.Ingest(ctx, lake.IngestRequest{Table: table, Options: opts})
				if err != nil {
					return err
				}
				return printIngest(cmd, newIngestView(res))
			})
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table name (default: sanitized file stem)")
	flags.register(cmd)
	return cmd
}

func printIngest(cmd *cobra.Command, v ingestView) error {
	out := cmd.OutOrStdout()
	if done, err := printStructured(out, getOutputFormat(cmd), v); done {
		return err
	}
	fields := map[string]string{
		"id":       strconv.FormatInt(v.Table.ID, 10),
		"name":     v.Table.Name,
		"location": v.Table.Location,
		"rows":     strconv.FormatInt(v.Rows, 10),
		"bytes":    strconv.FormatInt(v.Bytes, 10),
		"objects":  strconv.Itoa(len(v.Objects)),
	}
	if len(v.Table.PartitionBy) > 0 {
		fields["partition_by"] = strings.Join(v.Table.PartitionBy, ",")
	}
	if err := PrintDetail(out, fields); err != nil {
		return err
	}
	for _, w := range v.Warnings {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
	}
	return nil
}

func newIngestAllCmd(opener *engineOpener) *cobra.Command {
	var (
		flags       ingestFlags
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "ingest-all <glob>",
		Short: "Ingest every CSV file matching a glob pattern",
		Long: "Each matching .csv file (case-insensitive) becomes a table named after its " +
			"sanitized stem. The first failure stops the batch; tables already registered stay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opener, func(ctx context.Context, s *session) error {
				template, err := flags.options(s.defaults(), "")
				if err != nil {
					return err
				}
				n := concurrency
				if n <= 0 {
					n = s.cfg.IngestConcurrency
				}
				results, runErr := s.engine.IngestAll(ctx, args[0], template, n)
				views := make([]ingestView, 0, len(results))
				for _, r := range results {
					views = append(views, newIngestView(r))
				}
				if len(views) > 0 || runErr == nil {
					if err := printIngestList(cmd, views); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Parallel ingestion jobs (default from config)")
	flags.register(cmd)
	return cmd
}

func printIngestList(cmd *cobra.Command, views []ingestView) error {
	out := cmd.OutOrStdout()
	if done, err := printStructured(out, getOutputFormat(cmd), views); done {
		return err
	}
	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{
			strconv.FormatInt(v.Table.ID, 10),
			v.Table.Name,
			strconv.FormatInt(v.Rows, 10),
			v.Table.Location,
		}
	}
	return PrintTable(out, []string{"id", "name", "rows", "location"}, rows)
}

func newTablesCmd(opener *engineOpener) *cobra.Command {
	return &cobra.Command{
		Use:     "tables",
		Aliases: []string{"ls"},
		Short:   "List registered tables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opener, func(_ context.Context, s *session) error {
				tables := s.engine.ListTables()
				if tables == nil {
					tables = []domain.TableEntry{}
				}
				out := cmd.OutOrStdout()
				if done, err := printStructured(out, getOutputFormat(cmd), tables); done {
					return err
				}
				rows := make([][]string, len(tables))
				for i, t := range tables {
					rows[i] = []string{strconv.FormatInt(t.ID, 10), t.Name}
				}
				return PrintTable(out, []string{"id", "name"}, rows)
			})
		},
	}
}

func newDescribeCmd(opener *engineOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table-id>",
		Short: "Show a table's location, partitioning and columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTableID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opener, func(ctx context.Context, s *session) error {
				table, err := s.engine.GetTable(ctx, id)
				if err != nil {
					return err
				}
				v := newTableView(table)
				out := cmd.OutOrStdout()
				if done, err := printStructured(out, getOutputFormat(cmd), v); done {
					return err
				}
				fields := map[string]string{
					"id":       strconv.FormatInt(v.ID, 10),
					"name":     v.Name,
					"location": v.Location,
					"version":  v.Version,
					"created":  v.CreatedAt,
				}
				if len(v.PartitionBy) > 0 {
					fields["partition_by"] = strings.Join(v.PartitionBy, ",")
				}
				if err := PrintDetail(out, fields); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out)
				return printColumns(out, v.Columns)
			})
		},
	}
}

func newSchemaCmd(opener *engineOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table-id>",
		Short: "Print a table's column schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTableID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opener, func(ctx context.Context, s *session) error {
				cols, err := s.engine.GetSchema(ctx, id)
				if err != nil {
					return err
				}
				if cols == nil {
					cols = domain.Schema{}
				}
				out := cmd.OutOrStdout()
				if done, err := printStructured(out, getOutputFormat(cmd), cols); done {
					return err
				}
				return printColumns(out, cols)
			})
		},
	}
}

func printColumns(w io.Writer, cols []domain.Column) error {
	rows := make([][]string, len(cols))
	for i, c := range cols {
		rows[i] = []string{c.Name, string(c.DataType), strconv.FormatBool(c.Nullable)}
	}
	return PrintTable(w, []string{"name", "datatype", "nullable"}, rows)
}

func newDropCmd(opener *engineOpener) *cobra.Command {
	return &cobra.Command{
		Use:     "drop <table-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a table from the catalogue and delete its data",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTableID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opener, func(ctx context.Context, s *session) error {
				if err := s.engine.Drop(ctx, id); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if done, err := printStructured(out, getOutputFormat(cmd), map[string]int64{"dropped": id}); done {
					return err
				}
				_, _ = fmt.Fprintf(out, "Dropped table %d\n", id)
				return nil
			})
		},
	}
}
