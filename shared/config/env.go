// Package config provides environment variable helpers used across the
// kashef binaries. Each getter accepts one or more keys and returns the
// first value that is set and parses cleanly.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func String(def string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return def
}

func Int(def int, keys ...string) int {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if i, err := strconv.Atoi(value); err == nil {
				return i
			}
		}
	}
	return def
}

func Float(def float64, keys ...string) float64 {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
	}
	return def
}

func Bool(def bool, keys ...string) bool {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if b, err := strconv.ParseBool(value); err == nil {
				return b
			}
		}
	}
	return def
}

func Duration(def time.Duration, keys ...string) time.Duration {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			if d, err := time.ParseDuration(value); err == nil {
				return d
			}
		}
	}
	return def
}

// Slice parses a comma-separated env var into a string slice.
func Slice(def []string, keys ...string) []string {
	for _, key := range keys {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
