package domain

import "unicode/utf8"

// Ingestion defaults.
const (
	DefaultDelimiter    = ','
	DefaultSamplingSize = 5
	DefaultBatchSize    = 8192
)

// IngestionOptions configures one ingestion job.
type IngestionOptions struct {
	Source       string   `json:"source" yaml:"source"`
	Delimiter    rune     `json:"delimiter" yaml:"delimiter"`
	HasHeader    bool     `json:"has_header" yaml:"has_header"`
	SamplingSize int      `json:"sampling_size" yaml:"sampling_size"`
	PartitionBy  []string `json:"partition_by,omitempty" yaml:"partition_by,omitempty"`
	BatchSize    int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	StagingDir   string   `json:"-" yaml:"staging_dir,omitempty"`
	// Stem names the output directory. Derived from Source when empty.
	Stem string `json:"-" yaml:"stem,omitempty"`
}

// DefaultIngestionOptions returns options for a comma-delimited file with a header.
func DefaultIngestionOptions(source string) IngestionOptions {
	return IngestionOptions{
		Source:       source,
		Delimiter:    DefaultDelimiter,
		HasHeader:    true,
		SamplingSize: DefaultSamplingSize,
		BatchSize:    DefaultBatchSize,
	}
}

// WithDefaults fills zero-valued fields. HasHeader is left as given.
func (o IngestionOptions) WithDefaults() IngestionOptions {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.SamplingSize <= 0 {
		o.SamplingSize = DefaultSamplingSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Validate checks the options after defaults are applied.
func (o IngestionOptions) Validate() error {
	if o.Source == "" {
		return ErrValidation("source path is required")
	}
	if o.Delimiter == '\n' || o.Delimiter == '\r' || o.Delimiter == '"' ||
		o.Delimiter == utf8.RuneError || !utf8.ValidRune(o.Delimiter) {
		return ErrValidation("invalid delimiter %q", o.Delimiter)
	}
	seen := make(map[string]struct{}, len(o.PartitionBy))
	for _, p := range o.PartitionBy {
		if p == "" {
			return ErrValidation("partition column name must not be empty")
		}
		if _, dup := seen[p]; dup {
			return ErrValidation("partition column %q listed twice", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Partitioned reports whether the job splits output by column values.
func (o IngestionOptions) Partitioned() bool {
	return len(o.PartitionBy) > 0
}

// IngestionResult describes the outcome of an ingestion job.
type IngestionResult struct {
	Schema   Schema
	Location string
	Objects  []string
	Rows     int64
	Bytes    int64
	// Warnings carries non-fatal failures such as staging cleanup errors.
	Warnings []error
}
