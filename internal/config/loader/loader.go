// Package loader reads configuration documents and resolves their base
// inheritance chains.
//
// A document is a nested mapping read from YAML, JSON or TOML. The reserved
// key "_BASE_" names one or more parent documents; parents are resolved
// recursively, merged in listed order, and the child is merged on top.
// Every path the loader opens is first passed through a rerouting function
// so relocatable bundles resolve the same way from any working directory.
package loader

import (
	"io/fs"
	"os"
)

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	if src == nil {
		return dst
	}

	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = Clone(srcVal)
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = Clone(srcVal)
		}
	}

	return dst
}

// Clone creates a deep copy of a decoded value.
func Clone(val any) any {
	switch v := val.(type) {
	case map[string]any:
		dst := make(map[string]any, len(v))
		for key, item := range v {
			dst[key] = Clone(item)
		}
		return dst
	case []any:
		dst := make([]any, len(v))
		for i, item := range v {
			dst[i] = Clone(item)
		}
		return dst
	default:
		return val
	}
}
