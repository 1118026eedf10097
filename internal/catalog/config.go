package catalog

import (
	"os"
	"strconv"
	"strings"
)

// Config controls the catalog database connection.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// BusyTimeoutMS bounds how long a write waits on a locked database.
	BusyTimeoutMS int
	// MaxOpenConns caps the sqlx pool size.
	MaxOpenConns int
}

// LoadConfig reads catalog settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		Path:          strings.TrimSpace(os.Getenv("KBRAG_DB_PATH")),
		BusyTimeoutMS: envInt("KBRAG_DB_BUSY_TIMEOUT_MS"),
		MaxOpenConns:  envInt("KBRAG_DB_MAX_OPEN_CONNS"),
	}
	cfg.applyDefaults()
	return cfg
}

// Merge overlays non-zero fields from other onto the receiver.
func (c Config) Merge(other Config) Config {
	if other.Path != "" {
		c.Path = other.Path
	}
	if other.BusyTimeoutMS > 0 {
		c.BusyTimeoutMS = other.BusyTimeoutMS
	}
	if other.MaxOpenConns > 0 {
		c.MaxOpenConns = other.MaxOpenConns
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "kbrag.db"
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = 5000
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
}

func envInt(key string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
