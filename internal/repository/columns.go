package repository

import (
	"encoding/json"
	"time"
)

// Column coercion for map-scanned rows: the driver surfaces text as string
// or []byte depending on the column type and schema vintage.

func stringColumn(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func stringPtrColumn(v interface{}) *string {
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

func timeColumn(v interface{}) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func timePtrColumn(v interface{}) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}

func encodeLinksColumn(links []string) interface{} {
	if links == nil {
		links = []string{}
	}
	body, err := json.Marshal(links)
	if err != nil {
		return "[]"
	}
	return string(body)
}

func decodeLinksColumn(v interface{}) []string {
	raw := stringColumn(v)
	if raw == "" {
		return nil
	}
	var links []string
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil
	}
	return links
}
