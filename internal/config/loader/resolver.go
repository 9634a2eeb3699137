package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/trainconf/internal/config/reroute"
)

// DefaultBaseKey is the reserved key naming parent documents.
const DefaultBaseKey = "_BASE_"

// Document is a fully resolved configuration document.
type Document struct {
	// Path is the rerouted path of the top-level document.
	Path string

	// Data holds the merged values with the base key removed.
	Data map[string]any

	// Sources lists every file read while resolving, in read order.
	Sources []string
}

// Resolver loads documents and resolves their base chains.
// A Resolver holds no state between calls; every Resolve re-reads the
// whole chain.
type Resolver struct {
	fs      FileSystem
	reroute reroute.Func
	baseKey string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFS sets the file system documents are read from.
func WithFS(fs FileSystem) Option {
	return func(r *Resolver) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// WithReroute sets the rerouting function. By default the process-wide
// function from the reroute package is used at resolve time.
func WithReroute(fn reroute.Func) Option {
	return func(r *Resolver) {
		r.reroute = fn
	}
}

// WithBaseKey overrides the reserved inheritance key.
func WithBaseKey(key string) Option {
	return func(r *Resolver) {
		if key != "" {
			r.baseKey = key
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		fs:      DefaultFS(),
		baseKey: DefaultBaseKey,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads path and its base chain.
func (r *Resolver) Resolve(path string) (*Document, error) {
	fn := r.reroute
	if fn == nil {
		fn = reroute.Current()
	}

	st := &resolveState{
		reroute: fn,
		active:  make(map[string]bool),
		seen:    make(map[string]bool),
	}

	resolved := fn(path)
	data, err := r.resolve(resolved, st)
	if err != nil {
		return nil, err
	}

	return &Document{
		Path:    resolved,
		Data:    data,
		Sources: st.sources,
	}, nil
}

// Load resolves path and returns only the merged data.
func (r *Resolver) Load(path string) (map[string]any, error) {
	doc, err := r.Resolve(path)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

type resolveState struct {
	reroute reroute.Func
	stack   []string
	active  map[string]bool
	seen    map[string]bool
	sources []string
}

func (r *Resolver) resolve(path string, st *resolveState) (map[string]any, error) {
	key := canonicalPath(path)
	if st.active[key] {
		chain := make([]string, 0, len(st.stack)+1)
		for i, p := range st.stack {
			if canonicalPath(p) == key {
				chain = append(chain, st.stack[i:]...)
				break
			}
		}
		chain = append(chain, path)
		return nil, &CycleError{Chain: chain}
	}

	st.active[key] = true
	st.stack = append(st.stack, path)
	defer func() {
		delete(st.active, key)
		st.stack = st.stack[:len(st.stack)-1]
	}()

	data, err := r.read(path)
	if err != nil {
		return nil, err
	}
	if !st.seen[key] {
		st.seen[key] = true
		st.sources = append(st.sources, path)
	}

	rawBases, hasBases := data[r.baseKey]
	if !hasBases {
		return data, nil
	}
	delete(data, r.baseKey)

	bases, err := baseList(rawBases)
	if err != nil {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("%s: %v", r.baseKey, err)}
	}

	merged := make(map[string]any)
	for _, base := range bases {
		basePath := resolveBasePath(path, st.reroute(base))
		baseData, err := r.resolve(basePath, st)
		if err != nil {
			return nil, fmt.Errorf("resolving base %s of %s: %w", base, path, err)
		}
		merged = DeepMerge(merged, baseData)
	}

	return DeepMerge(merged, data), nil
}

func (r *Resolver) read(path string) (map[string]any, error) {
	raw, err := r.fs.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	format := FormatFor(path)
	data, err := format.Decode(raw)
	if err != nil {
		return nil, &ParseError{
			Path:    path,
			Format:  format.Name(),
			Message: err.Error(),
			Err:     err,
		}
	}
	return data, nil
}

// baseList accepts a single path or a sequence of paths.
func baseList(v any) ([]string, error) {
	switch b := v.(type) {
	case string:
		if b == "" {
			return nil, fmt.Errorf("empty base path")
		}
		return []string{b}, nil
	case []any:
		out := make([]string, 0, len(b))
		for _, item := range b {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("base entries must be non-empty strings, got %v (%T)", item, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("must be a string or list of strings, got %T", v)
	}
}

// resolveBasePath joins a relative base path to the directory of the
// document that references it.
func resolveBasePath(parent, base string) string {
	if filepath.IsAbs(base) || hasScheme(base) {
		return base
	}
	return filepath.Join(filepath.Dir(parent), base)
}

func hasScheme(path string) bool {
	i := strings.Index(path, "://")
	return i > 0 && !strings.ContainsAny(path[:i], `/\`)
}

func canonicalPath(path string) string {
	if hasScheme(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
