package server

import (
	"math"
	"strconv"
	"strings"
)

// clampInt coerces a loosely-typed config value to an int within
// [min, max]. Out-of-range or non-numeric input falls back to the
// default; config is never rejected.
func clampInt(value any, min, max, fallback int) int {
	var num float64
	switch v := value.(type) {
	case float64:
		num = v
	case int:
		num = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fallback
		}
		num = parsed
	default:
		return fallback
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return fallback
	}
	result := int(math.Trunc(num))
	if result < min || result > max {
		return fallback
	}
	return result
}

func clampDifficulty(value any) string {
	raw, ok := value.(string)
	if !ok {
		return defaultDifficulty
	}
	for _, allowed := range allowedDifficulties {
		if raw == allowed {
			return raw
		}
	}
	return defaultDifficulty
}

// normalizeCode trims and uppercases a submitted room code and checks
// its shape.
func normalizeCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 4 {
		return "", false
	}
	return code, true
}
