package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Coercion helpers for raw column maps. Database drivers surface values as
// string, []byte, int64, float64, bool or time.Time depending on the column
// and schema vintage, so every accessor accepts the whole spread.

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func asStringPtr(v interface{}) *string {
	switch t := v.(type) {
	case string:
		return &t
	case []byte:
		s := string(t)
		return &s
	default:
		return nil
	}
}

func asInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case []byte:
		n, _ := strconv.Atoi(string(t))
		return n
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func asIntPtr(v interface{}) *int {
	if v == nil {
		return nil
	}
	n := asInt(v)
	return &n
}

func asInt64Ptr(v interface{}) *int64 {
	if v == nil {
		return nil
	}
	n := int64(asInt(v))
	return &n
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case []byte:
		b, _ := strconv.ParseBool(string(t))
		return b
	case int64:
		return t != 0
	default:
		return false
	}
}

func asTime(v interface{}) time.Time {
	if t := asTimePtr(v); t != nil {
		return *t
	}
	return time.Time{}
}

func asTimePtr(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return &t
	case *time.Time:
		return t
	case string:
		return parseTimePtr(t)
	case []byte:
		return parseTimePtr(string(t))
	default:
		return nil
	}
}

func parseTimePtr(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func encodeJSONStrings(values []string) interface{} {
	if values == nil {
		values = []string{}
	}
	body, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(body)
}

func decodeJSONStrings(v interface{}) []string {
	raw := asString(v)
	if raw == "" {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		// Tolerate a single bare URL written before list support.
		return []string{raw}
	}
	if values == nil {
		return []string{}
	}
	return values
}
