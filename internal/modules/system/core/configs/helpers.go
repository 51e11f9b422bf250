package configs

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/clarity-app/core/internal/config"
)

func deepMergeJSON(oldVal, newVal interface{}) interface{} {
	oldMap, oldIsMap := oldVal.(map[string]interface{})
	newMap, newIsMap := newVal.(map[string]interface{})
	if oldIsMap && newIsMap {
		out := make(map[string]interface{}, len(oldMap))
		for k, v := range oldMap {
			out[k] = v
		}
		for k, v := range newMap {
			if existing, ok := out[k]; ok {
				out[k] = deepMergeJSON(existing, v)
				continue
			}
			out[k] = v
		}
		return out
	}

	// Arrays should be replaced as a whole.
	if _, ok := newVal.([]interface{}); ok {
		return newVal
	}

	return newVal
}

func shouldEnableInsights(partial map[string]json.RawMessage) bool {
	for _, sectionKey := range []string{"ai", "aiOptions"} {
		raw, ok := partial[sectionKey]
		if !ok || len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		for _, field := range []string{"enable_insights", "enableInsights"} {
			enabled, ok := parseBoolFromAny(payload[field])
			if ok && enabled {
				return true
			}
		}
	}
	return false
}

func hasEnabledAIProvider(providers []config.AIProvider) bool {
	for _, p := range providers {
		if p.Enabled && strings.TrimSpace(p.APIKey) != "" {
			return true
		}
	}
	return false
}

func parseBoolFromAny(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

// normalizeOptionKey maps a URL path segment to a FullConfig section key.
func normalizeOptionKey(key string) string {
	return camelToSnakeKey(strings.TrimSpace(key))
}

func normalizeJSONKeys(raw json.RawMessage, keyFn func(string) string) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(convertMapKeys(v, keyFn))
}

func convertMapKeys(v interface{}, keyFn func(string) string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[keyFn(k)] = convertMapKeys(val, keyFn)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = convertMapKeys(val, keyFn)
		}
		return out
	default:
		return v
	}
}

func snakeToCamelKey(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func camelToSnakeKey(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
