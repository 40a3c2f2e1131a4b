package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"lakehouse/internal/domain"
)

var disallowedNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\s]`)

// CleanColumnName removes every character that is not an ASCII letter,
// digit, underscore, hyphen or whitespace.
func CleanColumnName(name string) string {
	return disallowedNameChars.ReplaceAllString(name, "")
}

// DeduplicateNames cleans every name and resolves empties and collisions.
//
// Empty names become column_{n}; a name already assigned earlier becomes
// {name}_{n}. Both draw n from one counter starting at 1, so the result is a
// pure function of the input order. The first occurrence of a name is kept
// unchanged. Names are compared case-insensitively, matching how the query
// engine resolves identifiers.
func DeduplicateNames(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]struct{}, len(raw))
	counter := 0
	next := func() int {
		counter++
		return counter
	}

	for i, r := range raw {
		base := CleanColumnName(r)
		name := base
		if base == "" {
			base = "column"
			name = fmt.Sprintf("%s_%d", base, next())
		}
		for {
			if _, dup := taken[strings.ToLower(name)]; !dup {
				break
			}
			name = fmt.Sprintf("%s_%d", base, next())
		}
		taken[strings.ToLower(name)] = struct{}{}
		out[i] = name
	}
	return out
}

// CleanSchema returns a copy of s with cleaned and deduplicated names.
func CleanSchema(s domain.Schema) domain.Schema {
	names := DeduplicateNames(s.Names())
	out := make(domain.Schema, len(s))
	for i, c := range s {
		c.Name = names[i]
		out[i] = c
	}
	return out
}

// ValidatePartitions checks that every partition column exists in s.
func ValidatePartitions(s domain.Schema, columns []string) error {
	for _, col := range columns {
		if s.Index(col) < 0 {
			return &domain.UnknownPartitionColumnError{Column: col, Available: s.Names()}
		}
	}
	return nil
}
