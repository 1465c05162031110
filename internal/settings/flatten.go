package settings

import (
	"sort"
	"strings"
)

// Separator joins the keys of nested settings into a flat path.
const Separator = "."

type (
	// Settings is a nested mapping of setting names to values.
	// Nested mappings are map[string]any (or Settings), leaves are JSON compatible values.
	Settings map[string]any

	// Entry is a single flattened setting.
	Entry struct {
		Path  string
		Value any
	}
)

// Flatten converts nested settings into flat entries. Keys are visited in sorted
// order on every level, empty nested mappings produce no entries.
func Flatten(s Settings) ([]Entry, error) {
	var entries []Entry

	if err := flatten("", s, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

func flatten(prefix string, m map[string]any, out *[]Entry) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		if k == "" || strings.Contains(k, Separator) {
			return &InvalidKeyError{Path: prefix, Key: k}
		}

		path := k
		if prefix != "" {
			path = prefix + Separator + k
		}

		if child, ok := asMap(m[k]); ok {
			if err := flatten(path, child, out); err != nil {
				return err
			}

			continue
		}

		*out = append(*out, Entry{Path: path, Value: m[k]})
	}

	return nil
}

// Expand rebuilds nested settings from flat entries.
// Entries which imply conflicting structure, e.g. "a" and "a.b", fail with a StructuralConflictError.
// This holds for leaves whose value is itself a mapping.
func Expand(entries []Entry) (Settings, error) {
	root := Settings{}
	leaves := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		if e.Path == "" {
			return nil, &InvalidKeyError{Key: e.Path}
		}

		parts := strings.Split(e.Path, Separator)
		node := map[string]any(root)

		for i, part := range parts[:len(parts)-1] {
			if part == "" {
				return nil, &InvalidKeyError{Path: strings.Join(parts[:i], Separator), Key: part}
			}

			next, exists := node[part]
			if !exists {
				child := map[string]any{}
				node[part] = child
				node = child

				continue
			}

			// a leaf already sits where this path needs a mapping, even a leaf holding an object
			prefix := strings.Join(parts[:i+1], Separator)
			child, ok := next.(map[string]any)

			if _, leaf := leaves[prefix]; !ok || leaf {
				return nil, &StructuralConflictError{Path: e.Path, Conflict: prefix}
			}

			node = child
		}

		last := parts[len(parts)-1]
		if last == "" {
			return nil, &InvalidKeyError{Path: strings.Join(parts[:len(parts)-1], Separator), Key: last}
		}

		if _, exists := node[last]; exists {
			conflict := e.Path
			if _, leaf := leaves[e.Path]; !leaf {
				conflict = e.Path + Separator + "*"
			}

			return nil, &StructuralConflictError{Path: e.Path, Conflict: conflict}
		}

		node[last] = e.Value
		leaves[e.Path] = struct{}{}
	}

	return root, nil
}

// asMap reports whether v is a nested settings mapping.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Settings:
		return m, true
	default:
		return nil, false
	}
}
