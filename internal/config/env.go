package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the value of an environment variable, or the default
// when unset or empty.
func GetEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

// GetIntEnv parses an integer environment variable. Unset or malformed
// values fall back to the default.
func GetIntEnv(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetDurationEnv parses a duration environment variable ("30s", "5m").
// Unset or malformed values fall back to the default.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetSecretFile reads a mounted secret, trimming trailing whitespace.
// Used for API_KEY_FILE and WHATSAPP_TOKEN_FILE so credentials can come
// from Docker or Kubernetes secret mounts instead of the environment.
// Returns "" when the path is empty or unreadable; callers fall back to
// the plain environment variable.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
