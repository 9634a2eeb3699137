package tree

import (
	"errors"
	"fmt"
)

// Errors returned by tree operations.
var (
	// ErrFrozen indicates a mutation was attempted on a frozen tree.
	ErrFrozen = errors.New("config tree is frozen")

	// ErrKeyNotFound indicates the key path doesn't exist.
	ErrKeyNotFound = errors.New("config key not found")

	// ErrNotNode indicates a path segment holds a value where a nested
	// tree is required. Matched by *TypeError values expecting a node.
	ErrNotNode = errors.New("path segment is not a node")

	// ErrTypeMismatch indicates a value has the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidPath indicates an empty or malformed dotted path.
	ErrInvalidPath = errors.New("invalid key path")

	// ErrOddOverrides indicates an override list without a value for its
	// last key.
	ErrOddOverrides = errors.New("override list must contain key/value pairs")
)

// FrozenError is returned by mutating operations on a frozen tree.
type FrozenError struct {
	// Op names the rejected operation.
	Op string
	// Path is the key path being mutated, if any.
	Path string
}

// Error implements the error interface.
func (e *FrozenError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, ErrFrozen)
	}
	return fmt.Sprintf("%s: %s", e.Op, ErrFrozen)
}

// Is implements error matching for FrozenError.
func (e *FrozenError) Is(target error) bool {
	return target == ErrFrozen
}

// TypeError is returned when a value has an unexpected type.
type TypeError struct {
	// Path is the key path.
	Path string
	// Expected is the expected type name.
	Expected string
	// Actual is the actual type name.
	Actual string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	if target == ErrNotNode {
		return e.Expected == nodeType
	}
	return target == ErrTypeMismatch
}
