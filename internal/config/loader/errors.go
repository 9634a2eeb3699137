package loader

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the loader.
var (
	// ErrLoad indicates a document could not be read or decoded.
	ErrLoad = errors.New("config load failed")

	// ErrCyclicInheritance indicates a document inherits from itself,
	// directly or through other documents.
	ErrCyclicInheritance = errors.New("cyclic config inheritance")
)

// LoadError reports a document that could not be read.
type LoadError struct {
	// Path is the resolved path that failed.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("loading config %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Format is the document format that was attempted.
	Format string
	// Message describes the parse error.
	Message string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("parse error in %s (%s): %s", e.Path, e.Format, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrLoad.
func (e *ParseError) Is(target error) bool {
	return target == ErrLoad
}

// CycleError reports an inheritance cycle.
type CycleError struct {
	// Chain lists the documents from the first occurrence of the repeated
	// path to its second occurrence.
	Chain []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicInheritance, strings.Join(e.Chain, " -> "))
}

// Is reports whether target is ErrCyclicInheritance.
func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicInheritance
}
