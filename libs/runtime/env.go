package runtime

import (
	"fmt"
	"os"
	"strconv"
)

// Env returns the value of key, or fallback when unset or empty.
func Env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// RequiredEnv returns the value of key or an error naming the missing key.
func RequiredEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// EnvInt returns the integer value of key, or fallback when unset or not a
// positive integer.
func EnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// EnvPort validates that key holds a usable TCP port.
func EnvPort(key, fallback string) (string, error) {
	v := Env(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}
