package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "FILEVAULT_"

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func dur(dst func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

func list(dst func(c *Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst(c) = out
		return nil
	}
}

var envVars = []envVar{
	{"HTTP_ADDR", str(func(c *Config) *string { return &c.EndpointAddrHTTP })},
	{"GRPC_ADDR", str(func(c *Config) *string { return &c.EndpointAddrGRPC })},
	{"DATABASE_DSN", str(func(c *Config) *string { return &c.DatabaseDSN })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
	{"SECRET_KEY", str(func(c *Config) *string { return &c.SecretKey })},
	{"JWKS_URL", str(func(c *Config) *string { return &c.JWKSURL })},
	{"JWKS_REFRESH_INTERVAL", dur(func(c *Config) *time.Duration { return &c.JWKSRefreshInterval })},
	{"STORAGE_BACKEND", str(func(c *Config) *string { return &c.StorageBackend })},
	{"S3_ROOT_USER", str(func(c *Config) *string { return &c.S3RootUser })},
	{"S3_ROOT_PASSWORD", str(func(c *Config) *string { return &c.S3RootPassword })},
	{"S3_BUCKET", str(func(c *Config) *string { return &c.S3Bucket })},
	{"S3_REGION", str(func(c *Config) *string { return &c.S3Region })},
	{"S3_BASE_ENDPOINT", str(func(c *Config) *string { return &c.S3BaseEndpoint })},
	{"S3_USE_PATH_STYLE", func(c *Config, v string) (err error) {
		c.S3UsePathStyle, err = strconv.ParseBool(v)
		return err
	}},
	{"OBJECT_STORE_TIMEOUT", dur(func(c *Config) *time.Duration { return &c.ObjectStoreTimeout })},
	{"MASTER_KEY_SECRET", str(func(c *Config) *string { return &c.MasterKeySecret })},
	{"MASTER_KEY_SALT", str(func(c *Config) *string { return &c.MasterKeySalt })},
	{"KEY_PEPPER", str(func(c *Config) *string { return &c.KeyPepper })},
	{"MAX_UPLOAD_SIZE", func(c *Config, v string) (err error) {
		c.MaxUploadSize, err = strconv.ParseInt(v, 10, 64)
		return err
	}},
	{"BLOCKED_EXTENSIONS", list(func(c *Config) *[]string { return &c.BlockedExtensions })},
	{"ALLOWED_CONTENT_TYPES", list(func(c *Config) *[]string { return &c.AllowedContentTypes })},
	{"MAX_FAILED_ATTEMPTS", func(c *Config, v string) (err error) {
		c.MaxFailedAttempts, err = strconv.Atoi(v)
		return err
	}},
	{"FAILED_ATTEMPT_WINDOW", dur(func(c *Config) *time.Duration { return &c.FailedAttemptWindow })},
	{"RETRY_ATTEMPTS", func(c *Config, v string) (err error) {
		c.RetryAttempts, err = strconv.ParseUint(v, 10, 64)
		return err
	}},
	{"RETRY_BASE_DELAY", dur(func(c *Config) *time.Duration { return &c.RetryBaseDelay })},
	{"RECLAIM_INTERVAL", dur(func(c *Config) *time.Duration { return &c.ReclaimInterval })},
	{"SHUTDOWN_TIMEOUT", dur(func(c *Config) *time.Duration { return &c.ShutdownTimeout })},
}

// parseEnv overlays FILEVAULT_* variables found through lookup.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.name)
		if !ok {
			continue
		}
		if err := ev.set(config, v); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, ev.name, err)
		}
	}
	return nil
}
