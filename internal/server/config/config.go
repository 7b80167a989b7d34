// Package config handles configuration for the server component. Values are
// layered: defaults, then an optional JSON or YAML file, then environment
// variables (including a .env file), then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// Config holds runtime settings for the filevault server.
type Config struct {
	EndpointAddrHTTP string
	EndpointAddrGRPC string
	// DatabaseDSN is a PostgreSQL DSN (pgx). Empty selects the in-memory catalog.
	DatabaseDSN string
	LogLevel    string

	// SecretKey is the HS256 secret shared with the identity provider.
	SecretKey string
	// JWKSURL, when set, switches token verification to RS256 via JWKS.
	JWKSURL             string
	JWKSRefreshInterval time.Duration

	StorageBackend     string
	S3RootUser         string
	S3RootPassword     string
	S3Bucket           string
	S3Region           string
	S3BaseEndpoint     string
	S3UsePathStyle     bool
	ObjectStoreTimeout time.Duration

	// MasterKeySecret and MasterKeySalt derive the key that wraps per-file
	// data keys. Changing either makes existing files unreadable.
	MasterKeySecret string
	MasterKeySalt   string
	// KeyPepper keys the download-key hash. 1 to 64 bytes.
	KeyPepper string

	MaxUploadSize       int64
	BlockedExtensions   []string
	AllowedContentTypes []string

	MaxFailedAttempts   int
	FailedAttemptWindow time.Duration

	RetryAttempts  uint64
	RetryBaseDelay time.Duration

	ReclaimInterval time.Duration
	ShutdownTimeout time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secrets are insecure and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":8080"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.LogLevel = "info"

	c.SecretKey = "secretKey"
	c.JWKSURL = ""
	c.JWKSRefreshInterval = time.Hour

	c.StorageBackend = StorageMemory
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "filevault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.S3UsePathStyle = true
	c.ObjectStoreTimeout = 30 * time.Second

	c.MasterKeySecret = "masterSecret"
	c.MasterKeySalt = "filevault"
	c.KeyPepper = "keyPepper"

	c.MaxUploadSize = 50 << 20
	c.BlockedExtensions = []string{".exe", ".bat", ".cmd", ".com", ".scr", ".msi"}
	c.AllowedContentTypes = nil

	c.MaxFailedAttempts = 5
	c.FailedAttemptWindow = 15 * time.Minute

	c.RetryAttempts = 3
	c.RetryBaseDelay = 100 * time.Millisecond

	c.ReclaimInterval = time.Minute
	c.ShutdownTimeout = 10 * time.Second
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.StorageBackend != StorageS3 && c.StorageBackend != StorageMemory {
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	if c.StorageBackend == StorageS3 && c.S3Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required"))
	}
	if c.SecretKey == "" && c.JWKSURL == "" {
		errs = append(errs, errors.New("either secret key or jwks url is required"))
	}
	if c.MasterKeySecret == "" {
		errs = append(errs, errors.New("master key secret is required"))
	}
	if n := len(c.KeyPepper); n == 0 || n > 64 {
		errs = append(errs, errors.New("key pepper must be between 1 and 64 bytes"))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	if c.ObjectStoreTimeout <= 0 {
		errs = append(errs, errors.New("object store timeout must be positive"))
	}
	if c.ReclaimInterval <= 0 {
		errs = append(errs, errors.New("reclaim interval must be positive"))
	}

	return errors.Join(errs...)
}

// loadDotEnv is a seam for tests.
var loadDotEnv = func() error {
	return godotenv.Load()
}

// LoadConfig builds a Config from defaults, the optional config file named by
// -c/-config, the environment and command-line flags, in that order.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, os.Args[1:]); err != nil {
		return nil, err
	}

	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := parseEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := parseFlags(cfg, os.Args[1:]); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
