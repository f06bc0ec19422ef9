package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	storeBackends   = []string{"sqlite", "memory", "redis"}
	storeCodecs     = []string{"json", "msgpack"}
	oracleProviders = []string{"groq", "anthropic", "jmdict", "none"}
	logModes        = []string{"development", "production"}
)

// Validate checks names and required combinations. Load calls it.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Store.Codec = strings.ToLower(strings.TrimSpace(c.Store.Codec))
	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(c.Oracle.Provider))

	if !slices.Contains(storeBackends, c.Store.Backend) {
		return fmt.Errorf("store.backend must be one of %v (got %q)", storeBackends, c.Store.Backend)
	}
	if !slices.Contains(storeCodecs, c.Store.Codec) {
		return fmt.Errorf("store.codec must be one of %v (got %q)", storeCodecs, c.Store.Codec)
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required for the redis backend")
	}
	if !slices.Contains(oracleProviders, c.Oracle.Provider) {
		return fmt.Errorf("oracle.provider must be one of %v (got %q)", oracleProviders, c.Oracle.Provider)
	}
	if !slices.Contains(logModes, c.Log.Mode) {
		return fmt.Errorf("log.mode must be one of %v (got %q)", logModes, c.Log.Mode)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be > 0 (got %d)", c.Ingest.Workers)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be > 0 (got %d)", c.Ingest.BatchSize)
	}
	return nil
}

// HasOracleKey reports whether the selected network provider has credentials.
func (c *Config) HasOracleKey() bool {
	return strings.TrimSpace(c.Oracle.APIKey) != ""
}
