package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// "1s" style strings or integer nanoseconds. Keys missing from the file keep
// their previous values.
type FileConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN         string         `json:"database_dsn" yaml:"database_dsn"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	SecretKey           string         `json:"secret_key" yaml:"secret_key"`
	JWKSURL             string         `json:"jwks_url" yaml:"jwks_url"`
	JWKSRefreshInterval timex.Duration `json:"jwks_refresh_interval" yaml:"jwks_refresh_interval"`
	StorageBackend      string         `json:"storage_backend" yaml:"storage_backend"`
	S3RootUser          string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region            string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3UsePathStyle      bool           `json:"s3_use_path_style" yaml:"s3_use_path_style"`
	ObjectStoreTimeout  timex.Duration `json:"object_store_timeout" yaml:"object_store_timeout"`
	MasterKeySecret     string         `json:"master_key_secret" yaml:"master_key_secret"`
	MasterKeySalt       string         `json:"master_key_salt" yaml:"master_key_salt"`
	KeyPepper           string         `json:"key_pepper" yaml:"key_pepper"`
	MaxUploadSize       int64          `json:"max_upload_size" yaml:"max_upload_size"`
	BlockedExtensions   []string       `json:"blocked_extensions" yaml:"blocked_extensions"`
	AllowedContentTypes []string       `json:"allowed_content_types" yaml:"allowed_content_types"`
	MaxFailedAttempts   int            `json:"max_failed_attempts" yaml:"max_failed_attempts"`
	FailedAttemptWindow timex.Duration `json:"failed_attempt_window" yaml:"failed_attempt_window"`
	RetryAttempts       uint64         `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelay      timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	ReclaimInterval     timex.Duration `json:"reclaim_interval" yaml:"reclaim_interval"`
	ShutdownTimeout     timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func toFileConfig(c *Config) *FileConfig {
	return &FileConfig{
		EndpointAddrHTTP:    c.EndpointAddrHTTP,
		EndpointAddrGRPC:    c.EndpointAddrGRPC,
		DatabaseDSN:         c.DatabaseDSN,
		LogLevel:            c.LogLevel,
		SecretKey:           c.SecretKey,
		JWKSURL:             c.JWKSURL,
		JWKSRefreshInterval: timex.Duration{Duration: c.JWKSRefreshInterval},
		StorageBackend:      c.StorageBackend,
		S3RootUser:          c.S3RootUser,
		S3RootPassword:      c.S3RootPassword,
		S3Bucket:            c.S3Bucket,
		S3Region:            c.S3Region,
		S3BaseEndpoint:      c.S3BaseEndpoint,
		S3UsePathStyle:      c.S3UsePathStyle,
		ObjectStoreTimeout:  timex.Duration{Duration: c.ObjectStoreTimeout},
		MasterKeySecret:     c.MasterKeySecret,
		MasterKeySalt:       c.MasterKeySalt,
		KeyPepper:           c.KeyPepper,
		MaxUploadSize:       c.MaxUploadSize,
		BlockedExtensions:   c.BlockedExtensions,
		AllowedContentTypes: c.AllowedContentTypes,
		MaxFailedAttempts:   c.MaxFailedAttempts,
		FailedAttemptWindow: timex.Duration{Duration: c.FailedAttemptWindow},
		RetryAttempts:       c.RetryAttempts,
		RetryBaseDelay:      timex.Duration{Duration: c.RetryBaseDelay},
		ReclaimInterval:     timex.Duration{Duration: c.ReclaimInterval},
		ShutdownTimeout:     timex.Duration{Duration: c.ShutdownTimeout},
	}
}

func (f *FileConfig) apply(c *Config) {
	c.EndpointAddrHTTP = f.EndpointAddrHTTP
	c.EndpointAddrGRPC = f.EndpointAddrGRPC
	c.DatabaseDSN = f.DatabaseDSN
	c.LogLevel = f.LogLevel
	c.SecretKey = f.SecretKey
	c.JWKSURL = f.JWKSURL
	c.JWKSRefreshInterval = f.JWKSRefreshInterval.Duration
	c.StorageBackend = f.StorageBackend
	c.S3RootUser = f.S3RootUser
	c.S3RootPassword = f.S3RootPassword
	c.S3Bucket = f.S3Bucket
	c.S3Region = f.S3Region
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.S3UsePathStyle = f.S3UsePathStyle
	c.ObjectStoreTimeout = f.ObjectStoreTimeout.Duration
	c.MasterKeySecret = f.MasterKeySecret
	c.MasterKeySalt = f.MasterKeySalt
	c.KeyPepper = f.KeyPepper
	c.MaxUploadSize = f.MaxUploadSize
	c.BlockedExtensions = f.BlockedExtensions
	c.AllowedContentTypes = f.AllowedContentTypes
	c.MaxFailedAttempts = f.MaxFailedAttempts
	c.FailedAttemptWindow = f.FailedAttemptWindow.Duration
	c.RetryAttempts = f.RetryAttempts
	c.RetryBaseDelay = f.RetryBaseDelay.Duration
	c.ReclaimInterval = f.ReclaimInterval.Duration
	c.ShutdownTimeout = f.ShutdownTimeout.Duration
}

// parseFile overlays the file named by -c/-config, if any. Files ending in
// .yaml or .yml are read as YAML, anything else as JSON.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := toFileConfig(config)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}
