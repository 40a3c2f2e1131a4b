package ingestion

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"lakehouse/internal/domain"
)

// FindSources returns the regular .csv files matching a glob pattern. Letters
// in the pattern match case-insensitively, as does the extension check.
func FindSources(pattern string) ([]string, error) {
	matches, err := filepath.Glob(foldPattern(pattern))
	if err != nil {
		return nil, domain.ErrValidation("invalid source pattern %q: %v", pattern, err)
	}

	var out []string
	for _, m := range matches {
		if !strings.EqualFold(filepath.Ext(m), ".csv") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// foldPattern rewrites each letter outside a character class as [xX].
func foldPattern(pattern string) string {
	var b strings.Builder
	inClass := false
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
			b.WriteRune(r)
		case r == '\\' && filepath.Separator != '\\':
			escaped = true
			b.WriteRune(r)
		case r == '[':
			inClass = true
			b.WriteRune(r)
		case r == ']':
			inClass = false
			b.WriteRune(r)
		case !inClass && unicode.IsLetter(r) && unicode.ToLower(r) != unicode.ToUpper(r):
			b.WriteByte('[')
			b.WriteRune(unicode.ToLower(r))
			b.WriteRune(unicode.ToUpper(r))
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
