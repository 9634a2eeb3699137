// Package tree provides the hierarchical configuration tree used to
// describe training runs.
//
// A Tree maps string keys to scalars, sequences or nested trees. Trees are
// built by merging other trees, maps or files on top of each other, then
// frozen before being handed to consumers. Dotted paths ("SOLVER.BASE_LR")
// address nested values. Equality and Hash are defined over a deterministic
// serialization, so construction order never matters.
package tree

import (
	"log/slog"
	"sort"

	"github.com/dshills/trainconf/internal/config/migrate"
)

// Node is implemented by tree types that can be cast into a Tree.
type Node interface {
	// AsMap returns the content as plain nested maps.
	AsMap() map[string]any
	// IsFrozen reports whether the node is read-only.
	IsFrozen() bool
	// DeprecatedKeys returns the dotted paths marked deprecated.
	DeprecatedKeys() []string
}

// Tree is a mutable-until-frozen configuration node.
//
// A Tree is not safe for concurrent mutation.
type Tree struct {
	values map[string]any
	frozen bool

	// Root-level metadata. Sub-trees leave these unset.
	deprecated map[string]struct{}
	migrations *migrate.Set
	logger     *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for merge warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithMigrations overrides the migration rules applied before every merge.
// A nil set disables migrations.
func WithMigrations(set *migrate.Set) Option {
	return func(t *Tree) {
		if set == nil {
			set = migrate.NewSet(nil)
		}
		t.migrations = set
	}
}

// New creates an empty, unfrozen tree.
func New(opts ...Option) *Tree {
	t := &Tree{values: make(map[string]any)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FromMap builds a tree from nested maps. Values are normalized: integers
// become int64, floats float64, sequences []any and maps sub-trees.
func FromMap(data map[string]any, opts ...Option) (*Tree, error) {
	t, err := fromMap(data)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// MustFromMap is like FromMap but panics on error.
// Useful for literals in tests and defaults.
func MustFromMap(data map[string]any, opts ...Option) *Tree {
	t, err := FromMap(data, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func fromMap(data map[string]any) (*Tree, error) {
	t := &Tree{values: make(map[string]any, len(data))}
	for key, val := range data {
		if key == "" {
			return nil, ErrInvalidPath
		}
		n, err := normalize(val)
		if err != nil {
			return nil, &TypeError{Path: key, Expected: "config value", Actual: err.Error()}
		}
		t.values[key] = n
	}
	return t, nil
}

// Cast converts any compatible node into a Tree, preserving frozen state
// and deprecated-key metadata.
func Cast(n Node) (*Tree, error) {
	if t, ok := n.(*Tree); ok {
		return t.Clone(), nil
	}
	t, err := fromMap(n.AsMap())
	if err != nil {
		return nil, err
	}
	for _, key := range n.DeprecatedKeys() {
		t.markDeprecated(key)
	}
	if n.IsFrozen() {
		t.Freeze()
	}
	return t, nil
}

// Freeze makes the tree and all sub-trees read-only. Idempotent.
func (t *Tree) Freeze() {
	t.setFrozen(true)
}

// Unfreeze makes the tree and all sub-trees mutable again. Idempotent.
func (t *Tree) Unfreeze() {
	t.setFrozen(false)
}

func (t *Tree) setFrozen(frozen bool) {
	t.frozen = frozen
	for _, v := range t.values {
		if sub, ok := v.(*Tree); ok {
			sub.setFrozen(frozen)
		}
	}
}

// IsFrozen reports whether the tree is read-only.
func (t *Tree) IsFrozen() bool {
	return t.frozen
}

// Clone returns a deep, independent copy including frozen state and
// metadata.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		values:     make(map[string]any, len(t.values)),
		frozen:     t.frozen,
		migrations: t.migrations,
		logger:     t.logger,
	}
	for key, val := range t.values {
		c.values[key] = cloneValue(val)
	}
	if len(t.deprecated) > 0 {
		c.deprecated = make(map[string]struct{}, len(t.deprecated))
		for key := range t.deprecated {
			c.deprecated[key] = struct{}{}
		}
	}
	return c
}

// DeprecateKey marks a dotted path as deprecated. Incoming values for that
// path are dropped with a warning during merges.
func (t *Tree) DeprecateKey(path string) error {
	if t.frozen {
		return &FrozenError{Op: "deprecate", Path: path}
	}
	if _, ok := splitPath(path); !ok {
		return ErrInvalidPath
	}
	t.markDeprecated(path)
	return nil
}

func (t *Tree) markDeprecated(path string) {
	if t.deprecated == nil {
		t.deprecated = make(map[string]struct{})
	}
	t.deprecated[path] = struct{}{}
}

// IsDeprecated reports whether path was marked deprecated.
func (t *Tree) IsDeprecated(path string) bool {
	_, ok := t.deprecated[path]
	return ok
}

// DeprecatedKeys returns the deprecated paths, sorted.
func (t *Tree) DeprecatedKeys() []string {
	keys := make([]string, 0, len(t.deprecated))
	for key := range t.deprecated {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Keys returns the keys of this node, sorted.
func (t *Tree) Keys() []string {
	return sortedKeys(t.values)
}

// Len returns the number of keys in this node.
func (t *Tree) Len() int {
	return len(t.values)
}

func (t *Tree) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

func (t *Tree) migrationSet() *migrate.Set {
	if t.migrations != nil {
		return t.migrations
	}
	return migrate.Default(migrate.WithLogger(t.log()))
}
