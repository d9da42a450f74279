package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// truthy mirrors how loosely typed payloads are read: nil, empty strings,
// zero numbers, false and empty collections count as absent.
func truthy(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(vv) != ""
	case bool:
		return vv
	case float64:
		return vv != 0
	case int:
		return vv != 0
	case int64:
		return vv != 0
	case json.Number:
		f, err := vv.Float64()
		return err == nil && f != 0
	case []any:
		return len(vv) > 0
	case map[string]any:
		return len(vv) > 0
	default:
		return true
	}
}

// pick returns the first truthy value under keys.
func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

// pickStr returns the first non-empty value under keys rendered as a string.
func pickStr(m map[string]any, keys ...string) string {
	return stringOf(pick(m, keys...))
}

func pickStrDefault(m map[string]any, def string, keys ...string) string {
	if s := pickStr(m, keys...); s != "" {
		return s
	}
	return def
}

func pickNumber(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if f, ok := numberOf(m[k]); ok && f != 0 {
			return f
		}
	}
	return 0
}

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	o, _ := m[key].(map[string]any)
	return o
}

func list(m map[string]any, key string) ([]any, bool) {
	if m == nil {
		return nil, false
	}
	l, ok := m[key].([]any)
	return l, ok
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// stringOf renders scalars plainly; ids sent as numbers keep their integer form.
func stringOf(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case json.Number:
		return vv.String()
	case bool:
		return strconv.FormatBool(vv)
	default:
		return strings.TrimSpace(fmt.Sprint(vv))
	}
}

func numberOf(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case json.Number:
		f, err := vv.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		return f, err == nil
	}
	return 0, false
}

// textOf flattens collected-data values: strings as-is, lists one item per
// line, {"value": ...} objects by their value, anything else as JSON.
func textOf(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(vv))
		for _, it := range vv {
			if s := textOf(it); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if inner, ok := vv["value"]; ok {
			return textOf(inner)
		}
		b, err := json.Marshal(vv)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return stringOf(vv)
	}
}
