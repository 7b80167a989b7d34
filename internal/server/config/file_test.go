package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseFile_JSON(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"endpoint_addr_grpc":    "www.example:9000",
		"database_dsn":          "postgres://db",
		"secret_key":            "my_secret_key",
		"object_store_timeout":  "5s",
		"failed_attempt_window": 60000000000,
		"s3_bucket":             "bucket",
		"s3_use_path_style":     false,
		"blocked_extensions":    []string{".sh"},
		"max_failed_attempts":   9,
		"retry_attempts":        1,
	})

	cfg := defaults()
	require.NoError(t, parseFile(cfg, []string{"-config", path}))

	want := defaults()
	want.EndpointAddrGRPC = "www.example:9000"
	want.DatabaseDSN = "postgres://db"
	want.SecretKey = "my_secret_key"
	want.ObjectStoreTimeout = 5 * time.Second
	want.FailedAttemptWindow = time.Minute
	want.S3Bucket = "bucket"
	want.S3UsePathStyle = false
	want.BlockedExtensions = []string{".sh"}
	want.MaxFailedAttempts = 9
	want.RetryAttempts = 1

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func Test_parseFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage_backend: s3
s3_base_endpoint: http://minio:9000
reclaim_interval: 2m
allowed_content_types:
  - image/*
  - application/pdf
`), 0o600))

	cfg := defaults()
	require.NoError(t, parseFile(cfg, []string{"-c", path}))

	assert.Equal(t, StorageS3, cfg.StorageBackend)
	assert.Equal(t, "http://minio:9000", cfg.S3BaseEndpoint)
	assert.Equal(t, 2*time.Minute, cfg.ReclaimInterval)
	assert.Equal(t, []string{"image/*", "application/pdf"}, cfg.AllowedContentTypes)
	assert.Equal(t, ":8080", cfg.EndpointAddrHTTP, "unset keys keep their value")
}

func Test_parseFile_NoFlag(t *testing.T) {
	cfg := defaults()
	require.NoError(t, parseFile(cfg, []string{"-a", ":1"}))
	if diff := cmp.Diff(defaults(), cfg); diff != "" {
		t.Errorf("config changed without a file:\n%s", diff)
	}
}

func Test_parseFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"object_store_timeout": "never"}`), 0o600))

	err := parseFile(defaults(), []string{"-c", path})
	assert.ErrorContains(t, err, "parse config file")
}
