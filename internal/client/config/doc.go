// Package config loads runtime configuration for the filevault CLI.
//
// Sources, later ones win:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file given with -c or -config.
//  3. FILEVAULT_TOKEN from the environment.
//  4. Command-line flags.
//
// Example file:
//
//	{
//	  "server_url": "https://files.example.com",
//	  "download_dir": "/tmp/downloads",
//	  "timeout": "30s"
//	}
package config
