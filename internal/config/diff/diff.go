// Package diff reports value changes between two configuration trees.
//
// Diff is only defined for trees with identical leaf paths. A difference in
// shape means something restructured the config instead of changing
// values, which is reported as ErrSchemaMismatch.
package diff

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dshills/trainconf/internal/config/tree"
)

// ErrSchemaMismatch indicates the two trees have different leaf paths.
var ErrSchemaMismatch = errors.New("config schema mismatch")

// SchemaMismatchError lists the paths that differ between two trees.
type SchemaMismatchError struct {
	// Missing are paths present in the old tree only.
	Missing []string
	// Extra are paths present in the new tree only.
	Extra []string
}

// Error implements the error interface.
func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ", "))
	}
	if len(parts) == 0 {
		return ErrSchemaMismatch.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSchemaMismatch, strings.Join(parts, "; "))
}

// Is implements error matching for SchemaMismatchError.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Entry is one changed leaf.
type Entry struct {
	Path string
	Old  any
	New  any
}

// Record is an ordered list of changed leaves.
type Record []Entry

// Empty reports whether nothing changed.
func (r Record) Empty() bool {
	return len(r) == 0
}

// Paths returns the changed paths in order.
func (r Record) Paths() []string {
	out := make([]string, len(r))
	for i, e := range r {
		out[i] = e.Path
	}
	return out
}

// Invert swaps old and new values.
func (r Record) Invert() Record {
	out := make(Record, len(r))
	for i, e := range r {
		out[i] = Entry{Path: e.Path, Old: e.New, New: e.Old}
	}
	return out
}

// Diff compares oldTree and newTree leaf by leaf. Entries follow tree
// traversal order: keys sorted at every level, depth first.
func Diff(oldTree, newTree *tree.Tree) (Record, error) {
	oldPaths := oldTree.Paths()
	newPaths := newTree.Paths()
	if err := checkSchema(oldPaths, newPaths); err != nil {
		return nil, err
	}

	oldFlat := oldTree.Flatten()
	newFlat := newTree.Flatten()

	var record Record
	for _, path := range newPaths {
		oldVal, newVal := oldFlat[path], newFlat[path]
		if !reflect.DeepEqual(oldVal, newVal) {
			record = append(record, Entry{Path: path, Old: oldVal, New: newVal})
		}
	}
	return record, nil
}

func checkSchema(oldPaths, newPaths []string) error {
	oldSet := make(map[string]bool, len(oldPaths))
	for _, p := range oldPaths {
		oldSet[p] = true
	}
	newSet := make(map[string]bool, len(newPaths))
	for _, p := range newPaths {
		newSet[p] = true
	}

	mismatch := &SchemaMismatchError{}
	for _, p := range oldPaths {
		if !newSet[p] {
			mismatch.Missing = append(mismatch.Missing, p)
		}
	}
	for _, p := range newPaths {
		if !oldSet[p] {
			mismatch.Extra = append(mismatch.Extra, p)
		}
	}

	if len(mismatch.Missing) > 0 || len(mismatch.Extra) > 0 {
		return mismatch
	}
	return nil
}
