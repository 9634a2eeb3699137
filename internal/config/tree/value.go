package tree

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// absent is the type of Absent.
type absent struct{}

func (absent) String() string { return "<absent>" }

// Absent is returned by Lookup for paths that do not resolve to a value.
// It is distinct from a present nil value.
var Absent any = absent{}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

// normalize converts an arbitrary input value into tree form: integers
// become int64, floats float64, sequences []any and string-keyed maps *Tree.
func normalize(val any) (any, error) {
	switch v := val.(type) {
	case nil, bool, string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case *Tree:
		if v == nil {
			return nil, nil
		}
		return v.Clone(), nil
	case map[string]any:
		return fromMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := normalizeLeaf(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := normalizeLeaf(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromMap(m)
	default:
		return nil, fmt.Errorf("unsupported value type %T", val)
	}
}

// normalizeLeaf normalizes a value nested inside a sequence. Mappings inside
// sequences stay plain maps; they are part of the leaf value.
func normalizeLeaf(val any) (any, error) {
	n, err := normalize(val)
	if err != nil {
		return nil, err
	}
	if sub, ok := n.(*Tree); ok {
		return sub.AsMap(), nil
	}
	return n, nil
}

// cloneValue deep-copies a normalized value.
func cloneValue(val any) any {
	switch v := val.(type) {
	case *Tree:
		return v.Clone()
	case map[string]any:
		dst := make(map[string]any, len(v))
		for key, item := range v {
			dst[key] = cloneValue(item)
		}
		return dst
	case []any:
		dst := make([]any, len(v))
		for i, item := range v {
			dst[i] = cloneValue(item)
		}
		return dst
	default:
		return val
	}
}

// plainValue converts a normalized value into plain maps and slices.
func plainValue(val any) any {
	if sub, ok := val.(*Tree); ok {
		return sub.AsMap()
	}
	return cloneValue(val)
}

// nodeType is the type name of a nested tree.
const nodeType = "node"

// typeName describes a normalized value for error messages.
func typeName(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case *Tree:
		return nodeType
	case []any:
		return "list"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", val)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
