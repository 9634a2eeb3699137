package tree

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/dshills/trainconf/internal/config/loader"
)

// MergeFromTree overlays other onto t. Where both sides hold a node the
// merge recurses; otherwise the value from other replaces the one in t.
//
// Migration rules run first, on a copy of other, so other is never
// modified. Keys deprecated on t are skipped with a warning.
func (t *Tree) MergeFromTree(other *Tree) error {
	if t.frozen {
		return &FrozenError{Op: "merge"}
	}
	if other == nil {
		return nil
	}

	incoming := other.AsMap()
	t.migrationSet().Apply(incoming)

	src, err := fromMap(incoming)
	if err != nil {
		return err
	}

	t.overlay(src, "", t)
	return nil
}

// overlay merges src into t. src is freshly built and owned by the merge,
// so leaf values are moved, not copied. Incoming sub-trees are always
// walked so deprecated keys below a new node are dropped too.
func (t *Tree) overlay(src *Tree, prefix string, root *Tree) {
	for _, key := range src.Keys() {
		full := joinPath(prefix, key)
		if root.IsDeprecated(full) {
			root.log().Warn("Ignoring deprecated config key", slog.String("key", full))
			continue
		}

		srcVal := src.values[key]
		if srcSub, ok := srcVal.(*Tree); ok {
			dstSub, ok := t.values[key].(*Tree)
			if !ok {
				dstSub = &Tree{values: make(map[string]any, len(srcSub.values)), frozen: t.frozen}
				t.values[key] = dstSub
			}
			dstSub.overlay(srcSub, full, root)
			continue
		}
		t.values[key] = srcVal
	}
}

// MergeFromMap normalizes data and merges it like MergeFromTree.
func (t *Tree) MergeFromMap(data map[string]any) error {
	if t.frozen {
		return &FrozenError{Op: "merge"}
	}
	src, err := fromMap(data)
	if err != nil {
		return err
	}
	return t.MergeFromTree(src)
}

// MergeFromFile resolves path with its base chain and merges the result.
// The document is fully resolved before t is touched, so a failed load
// leaves t unchanged.
func (t *Tree) MergeFromFile(path string, opts ...loader.Option) error {
	if t.frozen {
		return &FrozenError{Op: "merge", Path: path}
	}

	doc, err := loader.NewResolver(opts...).Resolve(path)
	if err != nil {
		return err
	}

	src, err := fromMap(doc.Data)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", doc.Path, err)
	}
	return t.MergeFromTree(src)
}

// Load creates a tree from a file and its base chain.
func Load(path string, loaderOpts []loader.Option, opts ...Option) (*Tree, error) {
	t := New(opts...)
	if err := t.MergeFromFile(path, loaderOpts...); err != nil {
		return nil, err
	}
	return t, nil
}

// MergeFromList applies command-line style overrides given as alternating
// keys and values, e.g. {"SOLVER.BASE_LR", "0.02", "SOLVER.STEPS", "[10, 20]"}.
// Each key must already exist. Values are parsed as YAML literals; an int
// literal assigned to a float leaf is widened. All overrides are validated
// before any is applied.
func (t *Tree) MergeFromList(list []string) error {
	if t.frozen {
		return &FrozenError{Op: "merge"}
	}
	if len(list)%2 != 0 {
		return fmt.Errorf("%w: got %d items", ErrOddOverrides, len(list))
	}

	type override struct {
		path  string
		value any
	}
	overrides := make([]override, 0, len(list)/2)

	for i := 0; i < len(list); i += 2 {
		path, raw := list[i], list[i+1]
		if t.IsDeprecated(path) {
			t.log().Warn("Ignoring deprecated config key", slog.String("key", path))
			continue
		}

		current, ok := t.GetByPath(path)
		if !ok {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}

		value, err := coerce(path, current, raw)
		if err != nil {
			return err
		}
		overrides = append(overrides, override{path: path, value: value})
	}

	for _, o := range overrides {
		if err := t.Set(o.path, o.value); err != nil {
			return err
		}
	}
	return nil
}

// parseLiteral parses s as a YAML scalar or flow collection. Strings that
// are not valid YAML are returned unchanged.
func parseLiteral(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	n, err := normalize(v)
	if err != nil {
		return s
	}
	return n
}

// coerce parses raw and checks that the result can stand in for current.
// String leaves take raw verbatim.
func coerce(path string, current any, raw string) (any, error) {
	if _, ok := current.(string); ok {
		return raw, nil
	}

	replacement := parseLiteral(raw)
	if current == nil || replacement == nil {
		return replacement, nil
	}

	switch cur := current.(type) {
	case *Tree:
		if _, ok := replacement.(*Tree); ok {
			return replacement, nil
		}
	case float64:
		switch r := replacement.(type) {
		case float64:
			return r, nil
		case int64:
			return float64(r), nil
		}
	default:
		if typeName(cur) == typeName(replacement) {
			return replacement, nil
		}
	}

	return nil, &TypeError{Path: path, Expected: typeName(current), Actual: typeName(replacement)}
}
