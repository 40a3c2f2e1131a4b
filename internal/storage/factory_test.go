package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/config"
	"lakehouse/internal/domain"
)

func TestNew_Local(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{
		Kind:      config.StorageLocal,
		LocalRoot: filepath.Join(t.TempDir(), "lake"),
		ChunkSize: config.DefaultChunkSize,
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, b.Kind())
}

func TestNew_S3(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{
		Kind:      config.StorageS3,
		S3:        config.S3Config{Bucket: "lake", Region: "eu-central-1", URLStyle: "vhost"},
		ChunkSize: config.DefaultChunkSize,
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, KindS3, b.Kind())
}

func TestNew_InvalidConfig(t *testing.T) {
	b, err := New(context.Background(), config.StorageConfig{Kind: config.StorageS3, ChunkSize: 1}, nil, nil)
	require.Error(t, err)
	assert.Nil(t, b)
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.NotAccessible, se.Kind)

	_, err = New(context.Background(), config.StorageConfig{Kind: "tape", ChunkSize: 1}, nil, nil)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
