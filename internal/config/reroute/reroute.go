// Package reroute maps nominal configuration paths to the files that are
// actually opened.
//
// Config bundles refer to each other through nominal paths (for example
// "pkg://detection/base.yaml"). A rerouting function turns those into real
// filesystem locations. The process-wide function is installed once at
// startup and consulted for every path the loader opens.
package reroute

import (
	"sort"
	"strings"
	"sync"
)

// Func maps a nominal path to a resolved path.
type Func func(path string) string

// Identity returns path unchanged.
func Identity(path string) string {
	return path
}

var (
	mu      sync.RWMutex
	current Func = Identity
)

// Set installs fn as the process-wide rerouting function.
// A nil fn restores Identity.
func Set(fn Func) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		fn = Identity
	}
	current = fn
}

// Current returns the process-wide rerouting function.
func Current() Func {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Path reroutes path through the process-wide function.
func Path(path string) string {
	return Current()(path)
}

// Prefixes returns a Func that replaces the longest matching prefix in
// table with its target. Paths matching no prefix are returned unchanged.
func Prefixes(table map[string]string) Func {
	prefixes := make([]string, 0, len(table))
	targets := make(map[string]string, len(table))
	for prefix, target := range table {
		if prefix == "" {
			continue
		}
		prefixes = append(prefixes, prefix)
		targets[prefix] = target
	}

	// Longest first so "pkg://a/b/" wins over "pkg://a/".
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	return func(path string) string {
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				return targets[prefix] + strings.TrimPrefix(path, prefix)
			}
		}
		return path
	}
}

// Chain applies fns in order, feeding each result into the next.
func Chain(fns ...Func) Func {
	return func(path string) string {
		for _, fn := range fns {
			if fn != nil {
				path = fn(path)
			}
		}
		return path
	}
}
