package main

import (
	"fmt"

	"github.com/coordkit/coordkit/pkg/config/xconf"
)

// Config holds coordctl's runtime configuration: which backend each
// primitive runs against, and the connection details for that backend.
// Every field defaults to the in-memory adapter so the binary runs with
// zero external infrastructure out of the box.
type Config struct {
	Backend   string `koanf:"backend"`
	Namespace string `koanf:"namespace"`

	RedisAddr string `koanf:"redis_addr"`
	SQLDSN    string `koanf:"sql_dsn"`
	MongoURI  string `koanf:"mongo_uri"`
	MongoDB   string `koanf:"mongo_db"`
}

func defaultConfig() *Config {
	return &Config{
		Backend:   "memory",
		Namespace: "coordctl",
	}
}

// loadConfig reads path (if non-empty) over the defaults. path may be YAML
// or JSON; format is inferred from the extension.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	c, err := xconf.New(path)
	if err != nil {
		return nil, fmt.Errorf("coordctl: load config %q: %w", path, err)
	}
	if err := c.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("coordctl: unmarshal config %q: %w", path, err)
	}
	return cfg, nil
}
