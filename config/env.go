package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvString returns the trimmed value of key and whether it was set to a
// non-empty value.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// EnvInt parses key as an integer. Unset or empty values return ok=false.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvList splits a comma-separated variable, dropping empty entries.
func EnvList(key string) ([]string, bool) {
	raw, ok := EnvString(key)
	if !ok {
		return nil, false
	}
	out := SplitList(raw)
	return out, len(out) > 0
}

// SplitList splits comma-separated values and trims each entry.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
