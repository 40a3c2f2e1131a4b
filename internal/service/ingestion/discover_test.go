package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
)

func TestFoldPattern(t *testing.T) {
	assert.Equal(t, "*.[cC][sS][vV]", foldPattern("*.csv"))
	assert.Equal(t, "[ab]-[xX]", foldPattern("[ab]-x"))
	assert.Equal(t, "/1/2/*", foldPattern("/1/2/*"))
}

func TestFindSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "B.CSV", "c.txt", "sample_1.Csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n1\n"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.csv"), 0o755))

	got, err := FindSources(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "B.CSV"),
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "sample_1.Csv"),
	}, got)

	got, err = FindSources(filepath.Join(dir, "SAMPLE*.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "sample_1.Csv")}, got)
}

func TestFindSources_NoMatches(t *testing.T) {
	got, err := FindSources(filepath.Join(t.TempDir(), "*.csv"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindSources_BadPattern(t *testing.T) {
	_, err := FindSources("[")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
