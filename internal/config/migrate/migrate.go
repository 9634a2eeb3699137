// Package migrate rewrites legacy configuration values before they are
// merged into a tree.
//
// Each Rule names a dotted path, the legacy value that triggers it and the
// value that replaces it. Rules are applied as a separate pass over the
// incoming data, so the merge algorithm itself has no special cases. Adding
// or retiring a migration only touches the rule list returned by Default.
package migrate

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// Version identifies when a rule was introduced.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return compareInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return compareInt(v.Minor, other.Minor)
	default:
		return compareInt(v.Patch, other.Patch)
	}
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Rule rewrites the value at Path from Old to New.
type Rule struct {
	// Since is the release that changed the default.
	Since Version

	// Path is the dotted key path the rule inspects.
	Path string

	// Old is the legacy value that triggers the rewrite.
	Old any

	// New replaces Old. It is deep-copied on every application.
	New any

	// Description is logged when the rule fires.
	Description string
}

// Applied records a rule that fired.
type Applied struct {
	Rule Rule
	Old  any
	New  any
}

// Set is an ordered list of rules.
type Set struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithLogger sets the logger used for migration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSet creates a Set from rules. Rules run in Since order; rules with the
// same version keep their given order.
func NewSet(rules []Rule, opts ...Option) *Set {
	s := &Set{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add inserts a rule, keeping the list sorted by version.
func (s *Set) Add(r Rule) {
	i := len(s.rules)
	for i > 0 && s.rules[i-1].Since.Compare(r.Since) > 0 {
		i--
	}
	s.rules = append(s.rules, Rule{})
	copy(s.rules[i+1:], s.rules[i:])
	s.rules[i] = r
}

// Rules returns a copy of the rule list.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Apply rewrites data in place and returns the rules that fired.
// A rule fires only when its path exists and holds exactly Old.
func (s *Set) Apply(data map[string]any) []Applied {
	if s == nil || data == nil {
		return nil
	}

	var applied []Applied
	for _, r := range s.rules {
		current, ok := getNestedValue(data, r.Path)
		if !ok || !reflect.DeepEqual(current, r.Old) {
			continue
		}

		replacement := cloneValue(r.New)
		if !setNestedValue(data, r.Path, replacement) {
			continue
		}

		s.logger.Warn("Default value changed; rewriting legacy value",
			slog.String("path", r.Path),
			slog.Any("old", current),
			slog.Any("new", replacement),
			slog.String("since", r.Since.String()),
			slog.String("description", r.Description))

		applied = append(applied, Applied{Rule: r, Old: current, New: replacement})
	}
	return applied
}

// Default returns the built-in legacy rules.
func Default(opts ...Option) *Set {
	return NewSet([]Rule{
		{
			Since:       Version{Major: 2020, Minor: 1},
			Path:        "MODEL.FBNET_V2.ARCH_DEF",
			Old:         "",
			New:         []any{},
			Description: "Default value for MODEL.FBNET_V2.ARCH_DEF has changed to []",
		},
	}, opts...)
}

func getNestedValue(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(data)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setNestedValue replaces an existing leaf. It never creates keys.
func setNestedValue(data map[string]any, path string, value any) bool {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return false
		}
		current = next
	}
	last := parts[len(parts)-1]
	if _, ok := current[last]; !ok {
		return false
	}
	current[last] = value
	return true
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		dst := make(map[string]any, len(v))
		for k, item := range v {
			dst[k] = cloneValue(item)
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
