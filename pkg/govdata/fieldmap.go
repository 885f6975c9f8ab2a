package govdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldMap is an untyped upstream record. Both providers return records as
// loose field maps; decoding into typed entities goes through the strict
// accessors below so a malformed record fails individually instead of
// poisoning the whole batch.
type fieldMap map[string]any

// decodeFieldMap parses a raw record into a field map.
func decodeFieldMap(raw json.RawMessage) (fieldMap, error) {
	var m fieldMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("record is not an object: %w", err)
	}
	return m, nil
}

// unwrap returns the nested object stored under key. DVF wraps every
// record's payload in a "fields" object.
func (m fieldMap) unwrap(key string) (fieldMap, error) {
	raw, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing wrapper field %q", key)
	}
	nested, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("wrapper field %q is not an object", key)
	}
	return fieldMap(nested), nil
}

// requiredString returns the value for key or an error when absent/blank.
func (m fieldMap) requiredString(key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

// optionalString returns the value for key or "" when absent.
func (m fieldMap) optionalString(key string) string {
	if raw, ok := m[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

// asFloat converts a JSON value to float64. Providers are inconsistent
// about numeric fields: some arrive as numbers, some as strings.
func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// requiredFloat returns the numeric value for key or an error.
func (m fieldMap) requiredFloat(key string) (float64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing required field %q", key)
	}
	f, ok := asFloat(raw)
	if !ok {
		return 0, fmt.Errorf("field %q is not numeric", key)
	}
	return f, nil
}

// optionalFloat returns a pointer to the numeric value for key, or nil.
func (m fieldMap) optionalFloat(key string) *float64 {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}
	f, ok := asFloat(raw)
	if !ok {
		return nil
	}
	return &f
}

// floatOrZero returns the numeric value for key, treating absent or
// malformed values as zero. Used for per-use consumption figures where the
// provider omits unused posts.
func (m fieldMap) floatOrZero(key string) float64 {
	if f := m.optionalFloat(key); f != nil {
		return *f
	}
	return 0
}

// optionalInt returns a pointer to the integer value for key, or nil.
func (m fieldMap) optionalInt(key string) *int {
	f := m.optionalFloat(key)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// dateLayouts are the formats the providers use for date fields.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// requiredDate parses the date value for key or returns an error.
func (m fieldMap) requiredDate(key string) (time.Time, error) {
	s, err := m.requiredString(key)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("field %q has unrecognized date format %q", key, s)
}
