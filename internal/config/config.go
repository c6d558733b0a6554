// Package config loads the runtime's configuration surface (§6.5) into an
// explicit RuntimeConfig struct. go-crablet's internal/web-app/main.go reads
// DB_HOST/DB_PORT/... from os.Getenv with fallback defaults at process
// startup and threads the result through constructors (never a package
// global); RuntimeConfig generalizes that same pattern to the runtime's own
// four recognized variables instead of database coordinates.
package config

import (
	"os"
	"strconv"
)

// CryptoMode selects between the real cryptographic primitives and the
// deterministic dummy stand-ins (§4.2).
type CryptoMode string

const (
	CryptoModeReal  CryptoMode = "real"
	CryptoModeDummy CryptoMode = "dummy"
)

// RuntimeConfig is the explicit configuration object threaded through every
// constructor in the runtime (Design Notes §9: "Global process state...
// becomes an explicit RuntimeConfig").
type RuntimeConfig struct {
	// HandlerPath is the filesystem root the registry discovers handlers
	// under (§6.2).
	HandlerPath string
	// CryptoMode selects real or dummy crypto primitives (§4.2).
	CryptoMode CryptoMode
	// DBPath is the store file path. Empty or ":memory:" selects the
	// ephemeral sqlite3 backend (§3.9); anything else is a Postgres DSN.
	DBPath string
	// TestMode enables verbose internal tracing (§6.5).
	TestMode bool
	// RecheckBatchSize bounds how many recheck_queue markers a single
	// blocked.process_unblocked invocation drains (§4.8, default 1000).
	RecheckBatchSize int
	// RetryAttempts is loaded from RETRY_ATTEMPTS (default 3). Store.WithRetry
	// does not read it: both store backends always make up to 3 attempts.
	RetryAttempts int
	// LeaseTTLMillis is the default TTL for acquired leases (§4.12).
	LeaseTTLMillis int64
}

// Default returns the configuration defaults used when an environment
// variable is absent.
func Default() RuntimeConfig {
	return RuntimeConfig{
		HandlerPath:      "handlers",
		CryptoMode:       CryptoModeReal,
		DBPath:           ":memory:",
		TestMode:         false,
		RecheckBatchSize: 1000,
		RetryAttempts:    3,
		LeaseTTLMillis:   30_000,
	}
}

// FromEnv loads RuntimeConfig from the process environment, falling back to
// Default() for anything unset. It never mutates package-level state.
func FromEnv() RuntimeConfig {
	cfg := Default()

	if v := os.Getenv("HANDLER_PATH"); v != "" {
		cfg.HandlerPath = v
	}
	switch os.Getenv("CRYPTO_MODE") {
	case string(CryptoModeDummy):
		cfg.CryptoMode = CryptoModeDummy
	case string(CryptoModeReal):
		cfg.CryptoMode = CryptoModeReal
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TEST_MODE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.TestMode = parsed
		}
	}
	if v := os.Getenv("RECHECK_BATCH_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RecheckBatchSize = parsed
		}
	}
	if v := os.Getenv("RETRY_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.RetryAttempts = parsed
		}
	}
	if v := os.Getenv("LEASE_TTL_MS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			cfg.LeaseTTLMillis = parsed
		}
	}

	return cfg
}

// Ephemeral reports whether DBPath selects the in-process sqlite3 backend.
func (c RuntimeConfig) Ephemeral() bool {
	return c.DBPath == "" || c.DBPath == ":memory:"
}
