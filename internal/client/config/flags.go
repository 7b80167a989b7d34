package config

import (
	"flag"
	"io"
)

// parseFlags reads the CLI flags from args and returns the remaining
// positional arguments.
//
//	-a string   server base URL
//	-t string   bearer token
//	-k string   download key (skips the prompt)
//	-s string   HMAC secret used by the token command
//	-d string   download directory
//	-timeout    request timeout
func parseFlags(cfg *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("filevault-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	fs.StringVar(&cfg.Token, "t", cfg.Token, "bearer token")
	fs.StringVar(&cfg.DownloadKey, "k", cfg.DownloadKey, "download key")
	fs.StringVar(&cfg.Secret, "s", cfg.Secret, "token signing secret")
	fs.StringVar(&cfg.DownloadDir, "d", cfg.DownloadDir, "download directory")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")

	// Consumed by parseFile.
	var ignored string
	fs.StringVar(&ignored, "c", "", "config file")
	fs.StringVar(&ignored, "config", "", "config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}
