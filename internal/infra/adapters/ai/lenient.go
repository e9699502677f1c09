package ai

import (
	"strconv"
	"strings"
)

// The upstream services are free-text generative models, so responses arrive
// wrapped in code fences, prefixed with prose, or otherwise decorated.
// These helpers dig the JSON payload out before decoding.

// stripCodeFences removes a surrounding ```...``` block, including an
// optional language tag on the opening fence.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		first := strings.TrimSpace(s[:i])
		// drop a language tag like "json"
		if len(first) <= 10 && !strings.ContainsAny(first, "{}[]") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstJSONValue returns the first balanced JSON value in s opening with the
// given bracket, honoring string literals and escapes.
func firstJSONValue(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func firstJSONArray(s string) (string, bool) {
	return firstJSONValue(stripCodeFences(s), '[', ']')
}

func firstJSONObject(s string) (string, bool) {
	return firstJSONValue(stripCodeFences(s), '{', '}')
}

// asFloat coerces the numeric shapes generative models produce: numbers,
// numeric strings, and strings with stray symbols ("$1,200", "85%").
func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		cleaned := strings.TrimSpace(t)
		cleaned = strings.Trim(cleaned, "$%")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s := asString(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}
