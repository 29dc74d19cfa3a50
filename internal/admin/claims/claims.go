// Package claims reads loosely typed identity attributes, such as ID token
// claims or Kratos identity traits, into plain strings.
package claims

import "strings"

// String returns value as a trimmed string, or "" for any other type.
func String(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case *string:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	default:
		return ""
	}
}

// Strings flattens role-like values into a de-duplicated list, keeping first
// occurrence order. Accepted shapes are comma separated strings, string
// slices, JSON arrays and flag maps where true marks membership.
func Strings(values ...any) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	add := func(val string) {
		val = strings.TrimSpace(val)
		if val == "" {
			return
		}
		if _, dup := seen[val]; dup {
			return
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}

	for _, value := range values {
		switch v := value.(type) {
		case string:
			for _, part := range strings.Split(v, ",") {
				add(part)
			}
		case *string:
			add(String(v))
		case []string:
			for _, item := range v {
				add(item)
			}
		case []any:
			for _, item := range v {
				add(String(item))
			}
		case map[string]any:
			for key, flag := range v {
				if on, ok := flag.(bool); ok && on {
					add(key)
				}
			}
		}
	}
	return out
}

// First returns the first non-blank value, trimmed.
func First(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
