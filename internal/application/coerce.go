package application

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoerceValue converts a textual value into the most specific type it
// represents: "true"/"false" (any case) become bool, all-digit tokens
// become int64, decimals become float64. Everything else, including
// non-string input, is returned as is.
func CoerceValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	if isDigits(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}

	if !strings.ContainsAny(s, "xX_") {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}

	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
	return b, nil
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int64, int, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
}

func oneOf(allowed ...string) func(string) error {
	return func(s string) error {
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
