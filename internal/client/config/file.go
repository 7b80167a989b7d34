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

// FileConfig is the on-disk form of Config. Durations accept "30s" or
// integer nanoseconds.
type FileConfig struct {
	ServerURL   string         `json:"server_url" yaml:"server_url"`
	Token       string         `json:"token" yaml:"token"`
	Secret      string         `json:"secret" yaml:"secret"`
	DownloadDir string         `json:"download_dir" yaml:"download_dir"`
	Timeout     timex.Duration `json:"timeout" yaml:"timeout"`
}

// parseFile overlays cfg with the file named by -c or -config. Empty fields
// in the file keep the current values.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.Secret != "" {
		cfg.Secret = fc.Secret
	}
	if fc.DownloadDir != "" {
		cfg.DownloadDir = fc.DownloadDir
	}
	if fc.Timeout.Duration > 0 {
		cfg.Timeout = fc.Timeout.Duration
	}
	return nil
}
