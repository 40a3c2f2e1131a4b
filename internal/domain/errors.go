// Package domain defines core types, interfaces, and errors for the lake engine.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// DuplicateTableError is returned when a table name is already registered.
type DuplicateTableError struct {
	Name string
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("table %q already exists", e.Name)
}

// CorruptSchemaError indicates stored schema bytes could not be decoded.
type CorruptSchemaError struct {
	Message string
	Err     error
}

func (e *CorruptSchemaError) Error() string {
	if e.Err != nil {
		return "corrupt schema: " + e.Message + ": " + e.Err.Error()
	}
	return "corrupt schema: " + e.Message
}

func (e *CorruptSchemaError) Unwrap() error { return e.Err }

// TransactionError wraps a failure of the durable store.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("catalogue %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// StorageErrorKind classifies storage backend failures.
type StorageErrorKind string

// Storage error kinds.
const (
	UploadFailed  StorageErrorKind = "upload_failed"
	DeleteFailed  StorageErrorKind = "delete_failed"
	NotAccessible StorageErrorKind = "not_accessible"
)

// StorageError is returned by storage backends.
type StorageError struct {
	Kind StorageErrorKind
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Kind, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IngestionErrorKind classifies ingestion pipeline failures.
type IngestionErrorKind string

// Ingestion error kinds.
const (
	SchemaInferenceFailed IngestionErrorKind = "schema_inference_failed"
	RowConversionFailed   IngestionErrorKind = "row_conversion_failed"
	StagingCleanupFailed  IngestionErrorKind = "staging_cleanup_failed"
)

// IngestionError is returned by the ingestion pipeline.
type IngestionError struct {
	Kind IngestionErrorKind
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion %s: %v", e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// UnknownPartitionColumnError names a requested partition column that is not
// part of the inferred schema.
type UnknownPartitionColumnError struct {
	Column    string
	Available []string
}

func (e *UnknownPartitionColumnError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown partition column %q", e.Column)
	}
	return fmt.Sprintf("unknown partition column %q (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrCorruptSchema creates a CorruptSchemaError with a formatted message.
func ErrCorruptSchema(err error, format string, args ...interface{}) *CorruptSchemaError {
	return &CorruptSchemaError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrStorage creates a StorageError of the given kind.
func ErrStorage(kind StorageErrorKind, key string, err error) *StorageError {
	return &StorageError{Kind: kind, Key: key, Err: err}
}

// ErrIngestion creates an IngestionError of the given kind.
func ErrIngestion(kind IngestionErrorKind, err error) *IngestionError {
	return &IngestionError{Kind: kind, Err: err}
}
