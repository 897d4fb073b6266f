package provider

import "strings"

// Helpers for reading the opaque payload maps the provider APIs return.
// Missing or mistyped fields read as zero values; absence of an optional
// field is never an error.

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// firstStr reads the first element of a string-array field, the shape
// Europeana uses for title, description, subject, and creator.
func firstStr(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

func mapAt(m map[string]any, key string) map[string]any {
	sub, _ := m[key].(map[string]any)
	return sub
}

func listAt(m map[string]any, key string) []any {
	list, _ := m[key].([]any)
	return list
}

// dig walks nested maps and returns the value at the end of the key path,
// or nil if any step is missing.
func dig(m map[string]any, keys ...string) any {
	var current any = m
	for _, key := range keys {
		sub, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = sub[key]
	}
	return current
}

// digMap is dig for paths that end in an object.
func digMap(m map[string]any, keys ...string) map[string]any {
	sub, _ := dig(m, keys...).(map[string]any)
	return sub
}

// joinStrs collects the named string field from a list of objects,
// space-joined, for building exclusion-filter text out of nested
// people/tags arrays.
func joinStrs(list []any, field string) string {
	var parts []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s := str(m, field); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
