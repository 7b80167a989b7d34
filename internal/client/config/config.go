package config

import (
	"time"
)

// Config holds runtime settings for the filevault CLI.
type Config struct {
	ServerURL   string
	Token       string
	DownloadKey string
	Secret      string
	DownloadDir string
	Timeout     time.Duration
}

// LoadDefaults populates c with defaults matching a local development server.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.DownloadKey = ""
	c.Secret = "secretKey"
	c.DownloadDir = "downloads"
	c.Timeout = 5 * time.Minute
}

// LoadConfig applies defaults, then the optional config file (-c/-config),
// then the FILEVAULT_TOKEN environment variable, then flags. It returns the
// positional arguments left after the flags: the command and its operands.
func LoadConfig(args []string, lookupEnv func(string) (string, bool)) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, nil, err
	}

	if v, ok := lookupEnv("FILEVAULT_TOKEN"); ok && v != "" {
		cfg.Token = v
	}

	rest, err := parseFlags(cfg, args)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}
