package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/clientdesk/internal/config"
)

func testStore(t *testing.T, cfg config.StorageConfig) *S3Store {
	t.Helper()
	cfg.Region = "us-east-1"
	cfg.AccessKeyID = "AKIDEXAMPLE"
	cfg.SecretAccessKey = "secret"
	s, err := NewS3Store(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://photos.s3.amazonaws.com", publicBaseURL(config.StorageConfig{Bucket: "photos"}))
	assert.Equal(t, "http://minio:9000/photos", publicBaseURL(config.StorageConfig{
		Bucket: "photos", Endpoint: "http://minio:9000/", UsePathStyle: true,
	}))
	assert.Equal(t, "https://photos.storage.example", publicBaseURL(config.StorageConfig{
		Bucket: "photos", Endpoint: "https://storage.example",
	}))
}

func TestS3KeyFromURL(t *testing.T) {
	s := testStore(t, config.StorageConfig{Bucket: "photos"})

	key, ok := s.KeyFromURL("https://photos.s3.amazonaws.com/clients/abc.png")
	assert.True(t, ok)
	assert.Equal(t, "clients/abc.png", key)

	_, ok = s.KeyFromURL("https://elsewhere.example/clients/abc.png")
	assert.False(t, ok)
}

func TestS3Presign(t *testing.T) {
	s := testStore(t, config.StorageConfig{Bucket: "photos", Endpoint: "http://minio:9000", UsePathStyle: true})

	url, err := s.Presign(context.Background(), "clients/abc.png", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://minio:9000/photos/clients/abc.png?"), url)
	assert.Contains(t, url, "X-Amz-Expires=3600")
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.StorageConfig{})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("memory://photos/")

	url, err := m.Upload(ctx, "clients/x.jpg", strings.NewReader("jpeg"), 4, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "memory://photos/clients/x.jpg", url)

	key, ok := m.KeyFromURL(url)
	require.True(t, ok)
	assert.Equal(t, "clients/x.jpg", key)

	signed, err := m.Presign(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, url, signed)

	require.NoError(t, m.Delete(ctx, key))
	assert.False(t, m.Has(key))
	assert.NoError(t, m.Delete(ctx, key), "missing keys delete cleanly")
}
