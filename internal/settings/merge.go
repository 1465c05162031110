package settings

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Merge returns a deep copy of defaults with persisted merged on top.
// Values in persisted take precedence. Nested mappings present in both are merged recursively.
func Merge(defaults, persisted Settings) Settings {
	out := Clone(defaults)
	mergeInto(out, persisted)

	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcChild, srcIsMap := asMap(v)
		dstChild, dstIsMap := asMap(dst[k])

		if srcIsMap && dstIsMap {
			mergeInto(dstChild, srcChild)
			continue
		}

		dst[k] = cloneValue(v)
	}
}

// Clone returns a deep copy of s. A nil input returns an empty mapping.
func Clone(s Settings) Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, cv := range t {
			m[k] = cloneValue(cv)
		}

		return m
	case Settings:
		return map[string]any(Clone(t))
	case []any:
		l := make([]any, len(t))
		for i, cv := range t {
			l[i] = cloneValue(cv)
		}

		return l
	default:
		return v
	}
}

// Lookup returns the value at key. A key containing the Separator walks nested mappings.
func Lookup(s Settings, key string) (any, bool) {
	if v, ok := s[key]; ok {
		return v, true
	}

	parts := strings.Split(key, Separator)
	if len(parts) < 2 { //nolint:mnd
		return nil, false
	}

	node := map[string]any(s)
	for _, part := range parts[:len(parts)-1] {
		child, ok := asMap(node[part])
		if !ok {
			return nil, false
		}

		node = child
	}

	v, ok := node[parts[len(parts)-1]]

	return v, ok
}

// Normalize converts s into the form it has after being persisted and loaded again,
// e.g. integers become float64 and structs become nested mappings.
func Normalize(s any) (Settings, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode settings")
	}

	out := Settings{}
	if err = json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}

	if out == nil {
		return Settings{}, nil
	}

	return out, nil
}
