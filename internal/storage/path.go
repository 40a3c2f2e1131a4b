package storage

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"lakehouse/internal/domain"
)

var stemUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// SanitizeStem turns a source file name into a table stem: the extension is
// dropped, whitespace becomes '_' and every other rune outside
// [A-Za-z0-9_-] is removed. An empty result becomes "table".
func SanitizeStem(name string) string {
	base := filepath.Base(name)
	return SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// SanitizeName applies the stem cleaning rules to name without touching
// extensions or directories.
func SanitizeName(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	name = stemUnsafe.ReplaceAllString(name, "")
	if name == "" {
		return "table"
	}
	return name
}

// ObjectKey returns stem/file.
func ObjectKey(stem, file string) string {
	return stem + "/" + file
}

// PartitionKey maps a file path relative to the partitioned output directory
// (col=v/.../file) to its key under stem.
func PartitionKey(stem, rel string) string {
	return stem + "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// DirPrefix normalizes a directory prefix to end with exactly one '/'.
func DirPrefix(prefix string) string {
	return strings.Trim(prefix, "/") + "/"
}

// validateKey rejects keys that are empty, absolute or climb out of the root.
func validateKey(key string) error {
	if key == "" {
		return domain.ErrValidation("storage key must not be empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return domain.ErrValidation("storage key %q must be a relative slash-separated path", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return domain.ErrValidation("storage key %q must not contain %q segments", key, seg)
		}
	}
	return nil
}

func validatePrefix(prefix string) error {
	if strings.Trim(prefix, "/") == "" {
		return domain.ErrValidation("refusing to delete an empty prefix")
	}
	return validateKey(strings.Trim(prefix, "/"))
}

// joinPrefix prepends a configured key prefix.
func joinPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	joined := path.Join(prefix, key)
	if strings.HasSuffix(key, "/") {
		joined += "/"
	}
	return joined
}
