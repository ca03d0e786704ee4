// Package environment provides helpers for loading configuration from
// environment variables and optional .env files.
//
// Every getter reads one variable and falls back to a default when the
// variable is unset, empty, or malformed. Nothing here calls os.Exit; the
// binary decides what a missing value means.
package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DotEnvFiles are the files LoadDotEnv tries, in order. godotenv never
// overrides a variable that is already set, so the first file wins.
var DotEnvFiles = []string{".env.local", ".env"}

// LoadDotEnv loads DotEnvFiles from the working directory. Missing files are
// skipped. Set disableVar (e.g. KOKORO_DOTENV) to "false", "0", "off" or "no"
// to skip loading entirely.
func LoadDotEnv(disableVar string) error {
	if dotEnvDisabled(disableVar) {
		return nil
	}
	for _, p := range DotEnvFiles {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("environment: load %s: %w", p, err)
		}
		slog.Debug("loaded env file", "path", p)
	}
	return nil
}

func dotEnvDisabled(name string) bool {
	if name == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "0", "false", "off", "no":
		return true
	}
	return false
}

// StringOr returns the named variable, or defaultValue if it is unset or empty.
func StringOr(name, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the named variable or an error if it is unset or empty.
func RequiredString(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the variable with strconv.ParseBool.
func BoolOr(name string, defaultValue bool) bool {
	return parseOr(name, defaultValue, strconv.ParseBool)
}

// IntOr parses the variable as a base-10 integer.
func IntOr(name string, defaultValue int) int {
	return parseOr(name, defaultValue, strconv.Atoi)
}

// FloatOr parses the variable as a 64-bit float.
func FloatOr(name string, defaultValue float64) float64 {
	return parseOr(name, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// DurationOr parses the variable with time.ParseDuration ("30s", "5m").
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	return parseOr(name, defaultValue, time.ParseDuration)
}

// StringSliceOr splits the variable on commas, trimming each element and
// dropping empty ones. defaultValue is returned when nothing remains.
func StringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseOr[T any](name string, defaultValue T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		slog.Warn("ignoring malformed environment variable", "name", name, "err", err)
		return defaultValue
	}
	return parsed
}
