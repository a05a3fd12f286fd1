package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Drosera/pkg/automaton"
)

// GenerateDefaults holds the fallback generation parameters used when the
// corresponding flags are not given on the command line.
type GenerateDefaults struct {
	Length     int  `json:"length"`
	Order      int  `json:"order"`
	IgnoreCase bool `json:"ignore_case"`
}

// ServerConfig holds the configuration for the HTTP API server.
type ServerConfig struct {
	ApiAddr        string `json:"api_addr"`
	ModelCacheSize int    `json:"model_cache_size"`
}

// Config is the top-level configuration struct.
type Config struct {
	LogLevel  string            `json:"log_level"`
	DataDir   string            `json:"data_dir"`
	StorePath string            `json:"store_path"`
	Generate  *GenerateDefaults `json:"generate_defaults"`
	Server    *ServerConfig     `json:"server_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		DataDir:   "./data",
		StorePath: "./data/drosera.db",
		Generate: &GenerateDefaults{
			Length: automaton.DefaultLength,
			Order:  automaton.DefaultOrder,
		},
		Server: &ServerConfig{
			ApiAddr:        ":7279",
			ModelCacheSize: 16,
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the tool can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the JSON from the file into the config struct.
	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Sections removed from the file fall back to their defaults.
	if config.Generate == nil {
		config.Generate = DefaultConfig().Generate
	}
	if config.Server == nil {
		config.Server = DefaultConfig().Server
	}

	return config, nil
}
