// Package ingestion converts delimited text files into Parquet objects on a
// storage backend, optionally split into hive-style partitions.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"lakehouse/internal/domain"
)

// typeCandidate is one step of the inference lattice.
type typeCandidate struct {
	dataType domain.DataType
	accepts  func(string) bool
}

// inferenceOrder lists candidate types from narrowest to widest. Utf8 accepts
// everything and is the fallback. Each parser matches what the Arrow CSV
// reader accepts for the same type.
var inferenceOrder = []typeCandidate{
	{domain.TypeInt64, func(s string) bool {
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	}},
	{domain.TypeFloat64, func(s string) bool {
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	}},
	{domain.TypeBoolean, func(s string) bool {
		switch s {
		case "true", "True", "false", "False":
			return true
		}
		return false
	}},
	{domain.TypeDate32, func(s string) bool {
		_, err := time.Parse(time.DateOnly, s)
		return err == nil
	}},
	{domain.TypeTimestamp, func(s string) bool {
		_, err := arrow.TimestampFromString(s, arrow.Microsecond)
		return err == nil
	}},
}

// InferSchema samples the first SamplingSize data rows of the source and
// returns one nullable column per field, named as in the header. Without a
// header the names are column_1..column_n. Names are not cleaned.
func InferSchema(ctx context.Context, opts domain.IngestionOptions) (domain.Schema, error) {
	opts = opts.WithDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(opts.Source)
	if err != nil {
		return nil, domain.ErrIngestion(domain.SchemaInferenceFailed, fmt.Errorf("open source: %w", err))
	}
	defer f.Close() //nolint:errcheck

	header, samples, err := sampleRows(f, opts)
	if err != nil {
		return nil, domain.ErrIngestion(domain.SchemaInferenceFailed, err)
	}

	out := make(domain.Schema, len(header))
	for i, name := range header {
		out[i] = domain.Column{Name: name, DataType: inferColumn(samples, i), Nullable: true}
	}
	return out, nil
}

func sampleRows(r io.Reader, opts domain.IngestionOptions) (header []string, samples [][]string, err error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("source is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read first row: %w", err)
	}

	if opts.HasHeader {
		header = first
	} else {
		header = make([]string, len(first))
		for i := range first {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
		samples = append(samples, first)
	}

	for len(samples) < opts.SamplingSize {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read sample row %d: %w", len(samples)+1, err)
		}
		samples = append(samples, rec)
	}
	return header, samples, nil
}

// inferColumn returns the narrowest type accepting every non-empty sampled
// value of column i. Columns with no sampled values are Utf8.
func inferColumn(samples [][]string, i int) domain.DataType {
	values := make([]string, 0, len(samples))
	for _, row := range samples {
		if v := row[i]; v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return domain.TypeUtf8
	}

next:
	for _, cand := range inferenceOrder {
		for _, v := range values {
			if !cand.accepts(v) {
				continue next
			}
		}
		return cand.dataType
	}
	return domain.TypeUtf8
}
