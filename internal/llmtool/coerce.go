package llmtool

import (
	"fmt"
	"strconv"
	"strings"
)

// StringOr returns args[key] as trimmed text, or def when absent or blank.
// Numbers and booleans are formatted rather than rejected.
func StringOr(args map[string]any, key, def string) string {
	if s := String(args[key]); s != "" {
		return s
	}
	return def
}

func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool, int, int64:
		return fmt.Sprint(x)
	default:
		return ""
	}
}

// Number reads a JSON number, a numeric string ("12.50", "$12.50") or
// returns 0.
func Number(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		s := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(x), "$€£¥"))
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Strings reads args[key] as a list of strings.
func Strings(args map[string]any, key string) []string {
	switch x := args[key].(type) {
	case string:
		if s := strings.TrimSpace(x); s != "" {
			return []string{s}
		}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, v := range x {
			if s := String(v); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Objects reads args[key] as a list of JSON objects, skipping anything else.
func Objects(args map[string]any, key string) []map[string]any {
	list, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
