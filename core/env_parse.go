package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOrDefault returns the variable's value, or def when unset or empty.
func GetEnvOrDefault(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

// ParseIntEnv returns the variable as an int, or def when unset or not a
// number.
func ParseIntEnv(key string, def int) int {
	n, err := strconv.Atoi(GetEnvOrDefault(key, ""))
	if err != nil {
		return def
	}
	return n
}

// ParseBoolEnv accepts true/false, 1/0, yes/no and on/off in any case.
// Anything else yields def.
func ParseBoolEnv(key string, def bool) bool {
	switch strings.ToLower(GetEnvOrDefault(key, "")) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

// ParseMillisEnv reads a whole number of milliseconds.
func ParseMillisEnv(key string, defMillis int) time.Duration {
	return time.Duration(ParseIntEnv(key, defMillis)) * time.Millisecond
}

// ParseDurationEnv reads either a bare number of seconds ("90") or a Go
// duration ("1m30s").
func ParseDurationEnv(key string, defSeconds int) time.Duration {
	value := GetEnvOrDefault(key, "")
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return time.Duration(defSeconds) * time.Second
}
