// Package config provides configuration management for schemamap services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/schemamap/internal/rules"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Skeleton SkeletonConfig
	Log      LogConfig
}

// ServerConfig holds listener settings for the gRPC and HTTP surfaces.
type ServerConfig struct {
	Host           string
	GRPCPort       int
	HTTPPort       int
	RequestTimeout time.Duration
}

// DatabaseConfig selects mapping-set storage.
// An empty URL disables storage-backed operations.
type DatabaseConfig struct {
	URL string
}

// EngineConfig mirrors rules.Options.
type EngineConfig struct {
	ResultProperty           string
	CommentPrefix            string
	DefaultResult            any
	TrivialPropertyThreshold int
}

// SkeletonConfig points at the template skeleton compiled documents start from.
type SkeletonConfig struct {
	Path  string
	Watch bool
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	opts := rules.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			GRPCPort:       50051,
			HTTPPort:       8080,
			RequestTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			ResultProperty:           opts.ResultProperty,
			CommentPrefix:            opts.CommentPrefix,
			DefaultResult:            opts.DefaultResult,
			TrivialPropertyThreshold: opts.TrivialPropertyThreshold,
		},
		Skeleton: SkeletonConfig{Watch: true},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Options converts the engine section into rules.Options.
func (c EngineConfig) Options() rules.Options {
	return rules.Options{
		ResultProperty:           c.ResultProperty,
		CommentPrefix:            c.CommentPrefix,
		DefaultResult:            c.DefaultResult,
		TrivialPropertyThreshold: c.TrivialPropertyThreshold,
	}
}

// parseDefaultResult keeps numeric defaults numeric when they arrive as
// strings from the environment.
func parseDefaultResult(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return s
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports SM_HMAC_SECRET (single) and SM_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check SM_HMAC_SECRET and SM_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("SM_HMAC_SECRET"); val != "" {
		if err := add("SM_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets enable rotation: old and new keys valid during migration
	for i := 1; ; i++ {
		key := fmt.Sprintf("SM_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}

	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
