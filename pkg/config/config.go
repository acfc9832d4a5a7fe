// Package config loads engine configuration from the environment and
// optional YAML deployment profiles.
package config

import "os"

// Config holds engine host configuration.
type Config struct {
	// StoreBackend selects the record store: "memory", "sqlite" or
	// "postgres".
	StoreBackend string
	// StoreDSN is the sqlite path or postgres connection string.
	StoreDSN string
	LogLevel string
	// RedisURL enables the Redis approval registry when set.
	RedisURL string
	// OTLPEndpoint enables the OpenTelemetry provider when set.
	OTLPEndpoint string
	// JWTSecret enables the JWT party verifier when set.
	JWTSecret string
	JWTIssuer string
	// ProfilesDir is the directory searched for deployment profiles.
	ProfilesDir string
	// Profile names the deployment profile to apply; empty runs
	// unconstrained.
	Profile string
	// ArchiveDir receives audit snapshots; empty disables archiving.
	ArchiveDir string
}

// Load reads configuration from environment variables, applying
// defaults suited to local development.
func Load() *Config {
	backend := os.Getenv("COVENANT_STORE")
	if backend == "" {
		backend = "memory"
	}

	dsn := os.Getenv("COVENANT_STORE_DSN")
	if dsn == "" && backend == "sqlite" {
		dsn = "covenant.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	profilesDir := os.Getenv("COVENANT_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	return &Config{
		StoreBackend: backend,
		StoreDSN:     dsn,
		LogLevel:     logLevel,
		RedisURL:     os.Getenv("COVENANT_REDIS_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		JWTSecret:    os.Getenv("COVENANT_JWT_SECRET"),
		JWTIssuer:    os.Getenv("COVENANT_JWT_ISSUER"),
		ProfilesDir:  profilesDir,
		Profile:      os.Getenv("COVENANT_PROFILE"),
		ArchiveDir:   os.Getenv("COVENANT_ARCHIVE_DIR"),
	}
}
