// Package config holds runtime settings for the Worldloom client: server
// address, sync cadence and the local database location. Values come from
// defaults, then an optional JSON file, then command-line flags, with later
// sources taking precedence.
package config

import "time"

type Config struct {
	// ServerBaseURL is the base URL of the sync backend, e.g.
	// "http://127.0.0.1:8080".
	ServerBaseURL string

	// DatabasePath is the SQLite file holding the local store, journal, id
	// map and sync metadata.
	DatabasePath string

	// OnlineCheckInterval is how often the client probes /health to detect
	// offline/online transitions.
	OnlineCheckInterval time.Duration

	// SyncInterval is the cadence of periodic sync cycles while online.
	SyncInterval time.Duration

	// RequestTimeout bounds every single remote request.
	RequestTimeout time.Duration
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.DatabasePath = "worldloom.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 15 * time.Second
	c.RequestTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
