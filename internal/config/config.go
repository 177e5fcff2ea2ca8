// Package config provides environment-backed defaults for framegate commands.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults used when the environment is silent.
const (
	DefaultDevice   = "CPU"
	DefaultThreads  = 1
	DefaultAddr     = ":8080"
	DefaultLogLevel = "info"
	DefaultModel    = "models/mobilenet_v2.onnx"
	DefaultLabels   = "models/labels.txt"
	DefaultDBPort   = "5432"
	DefaultDBURL    = "postgres://localhost:5432/framegate"
)

// String returns the env var value or the default.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or the default when unset or malformed.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Device returns the compute device from FRAMEGATE_DEVICE.
func Device() string {
	return String("FRAMEGATE_DEVICE", DefaultDevice)
}

// Threads returns the classifier thread count from FRAMEGATE_THREADS.
func Threads() int {
	return Int("FRAMEGATE_THREADS", DefaultThreads)
}

// Addr returns the dashboard listen address from FRAMEGATE_ADDR.
func Addr() string {
	return String("FRAMEGATE_ADDR", DefaultAddr)
}

// ModelPath returns the ONNX model path from FRAMEGATE_MODEL.
func ModelPath() string {
	return String("FRAMEGATE_MODEL", DefaultModel)
}

// LabelsPath returns the label file path from FRAMEGATE_LABELS.
func LabelsPath() string {
	return String("FRAMEGATE_LABELS", DefaultLabels)
}

// LogLevel returns the log level from LOG_LEVEL.
func LogLevel() string {
	return String("LOG_LEVEL", DefaultLogLevel)
}

// DatabaseURL returns DATABASE_URL, or builds one from the POSTGRES_* variables.
// Returns an empty string when neither is set.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		host,
		String("POSTGRES_PORT", DefaultDBPort),
		os.Getenv("POSTGRES_DB"),
	)
}
