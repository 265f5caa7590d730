// Package config holds daemon process configuration (env-var) and the
// user-facing Settings blob (YAML, hot-reloadable).
package config

import (
	"os"
	"strconv"
)

// Config is the daemon's process-level configuration: listen addresses,
// model directory, and log shape. Read once at startup from the
// environment; distinct from Settings, which is reloadable at runtime.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string
	ModelDir     string
	LogLevel     string
	LogFormat    string // "text" or "json"
	SettingsPath string
}

// Load reads Config from the environment, filling gaps with defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:     getEnv("MURMUR_HTTP_ADDR", ":7700"),
		GRPCAddr:     getEnv("MURMUR_GRPC_ADDR", ":7701"),
		ModelDir:     getEnv("MURMUR_MODEL_DIR", "./models"),
		LogLevel:     getEnv("MURMUR_LOG_LEVEL", "info"),
		LogFormat:    getEnv("MURMUR_LOG_FORMAT", "text"),
		SettingsPath: getEnv("MURMUR_SETTINGS_PATH", "./settings.yaml"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
