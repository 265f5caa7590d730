package config

import (
	"os"
	"testing"
)

var configEnvVars = []string{
	"MURMUR_HTTP_ADDR", "MURMUR_GRPC_ADDR", "MURMUR_MODEL_DIR",
	"MURMUR_LOG_LEVEL", "MURMUR_LOG_FORMAT", "MURMUR_SETTINGS_PATH",
}

func clearConfigEnv() {
	for _, v := range configEnvVars {
		os.Unsetenv(v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv()
	cfg := Load()

	if cfg.HTTPAddr != ":7700" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":7700")
	}
	if cfg.GRPCAddr != ":7701" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":7701")
	}
	if cfg.ModelDir != "./models" {
		t.Errorf("ModelDir = %q, want %q", cfg.ModelDir, "./models")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "text")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv()
	os.Setenv("MURMUR_HTTP_ADDR", ":9000")
	os.Setenv("MURMUR_MODEL_DIR", "/opt/murmur/models")
	os.Setenv("MURMUR_LOG_FORMAT", "json")
	defer clearConfigEnv()

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.ModelDir != "/opt/murmur/models" {
		t.Errorf("ModelDir = %q, want %q", cfg.ModelDir, "/opt/murmur/models")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
	if cfg.GRPCAddr != ":7701" {
		t.Errorf("GRPCAddr = %q, want default %q", cfg.GRPCAddr, ":7701")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_STRING", "hello")
	defer os.Unsetenv("TEST_STRING")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("TEST_NONEXISTENT", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")
	if v := getEnvInt("TEST_INT", 0); v != 42 {
		t.Errorf("getEnvInt = %d, want 42", v)
	}
	os.Setenv("TEST_INT_INVALID", "nope")
	defer os.Unsetenv("TEST_INT_INVALID")
	if v := getEnvInt("TEST_INT_INVALID", 7); v != 7 {
		t.Errorf("getEnvInt with invalid value = %d, want fallback 7", v)
	}

	os.Setenv("TEST_BOOL", "1")
	defer os.Unsetenv("TEST_BOOL")
	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool(\"1\") should be true")
	}
	if !getEnvBool("TEST_BOOL_MISSING", true) {
		t.Error("getEnvBool default should be honored when unset")
	}
}
