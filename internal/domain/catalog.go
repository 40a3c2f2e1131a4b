package domain

import (
	"strings"
	"time"
)

// SchemaVersionV1 is the version marker stored with every newly created schema.
const SchemaVersionV1 = "v1"

// Table is a catalogue entry: identity, schema and storage location.
type Table struct {
	ID          int64
	Name        string
	Schema      Schema
	Location    string
	PartitionBy []string
	Version     string
	CreatedAt   time.Time
}

// TableEntry is the cached id → name form of a table.
type TableEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateTableRequest holds the fields needed to register a table.
type CreateTableRequest struct {
	Name        string
	Schema      Schema
	Location    string
	PartitionBy []string
}

// Validate checks that the request can be registered.
func (r CreateTableRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrValidation("table name is required")
	}
	if err := r.Schema.Validate(); err != nil {
		return err
	}
	for _, p := range r.PartitionBy {
		if r.Schema.Index(p) < 0 {
			return &UnknownPartitionColumnError{Column: p, Available: r.Schema.Names()}
		}
	}
	return nil
}

// TableRecord is the durable-store form of a table with its encoded schema.
type TableRecord struct {
	ID          int64
	Name        string
	SchemaID    int64
	SchemaBytes []byte
	Location    string
	PartitionBy []string
	Version     string
	CreatedAt   time.Time
}

// JoinPartitionSpec renders a partition column list for storage.
func JoinPartitionSpec(cols []string) string {
	return strings.Join(cols, ",")
}

// SplitPartitionSpec parses a stored partition column list.
func SplitPartitionSpec(spec string) []string {
	if spec == "" {
		return nil
	}
	return strings.Split(spec, ",")
}
