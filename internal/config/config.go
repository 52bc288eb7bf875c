package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port            string        // Panel HTTP port
	DBPath          string        // SQLite database path
	JWTSecret       string        // JWT signing secret
	DataDir         string        // Data directory root
	ExportsDir      string        // Directory holding exported project sources awaiting deployment
	GithubToken     string        // Token used to create repos and push exported sources
	GithubOwner     string        // Account or org that receives created repositories
	GithubAPI       string        // Override for GitHub Enterprise; empty means github.com
	HTTPTimeout     time.Duration // Upper bound for every outbound PaaS/VCS/probe call
	MonitorInterval time.Duration // Poll interval for the deployment monitor
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	dataDir := envOrDefault("EJECT_DATA_DIR", "./data")

	cfg := &Config{
		Port:            envOrDefault("EJECT_PORT", "8080"),
		DBPath:          envOrDefault("EJECT_DB_PATH", filepath.Join(dataDir, "eject.db")),
		JWTSecret:       envOrDefault("EJECT_JWT_SECRET", "eject-change-me-in-production"),
		DataDir:         dataDir,
		ExportsDir:      envOrDefault("EJECT_EXPORTS_DIR", filepath.Join(dataDir, "exports")),
		GithubToken:     os.Getenv("EJECT_GITHUB_TOKEN"),
		GithubOwner:     os.Getenv("EJECT_GITHUB_OWNER"),
		GithubAPI:       os.Getenv("EJECT_GITHUB_API"),
		HTTPTimeout:     envDuration("EJECT_HTTP_TIMEOUT", 30*time.Second),
		MonitorInterval: envDuration("EJECT_MONITOR_INTERVAL", 60*time.Second),
	}

	// Ensure directories exist
	os.MkdirAll(dataDir, 0755)
	os.MkdirAll(cfg.ExportsDir, 0755)

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envDuration parses a duration value ("45s", "2m") or a bare number of
// seconds; invalid values fall back to the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
