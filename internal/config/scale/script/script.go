// Package script loads auto scaling strategies written in Lua.
//
// A script defines a global function
//
//	function scale(cfg, old_world_size, new_world_size)
//
// where cfg exposes cfg:get(path), cfg:set(path, value) and cfg:has(path)
// over dotted config paths. Scripts run in a sandbox with only the base,
// table, string and math libraries.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/trainconf/internal/config/scale"
	"github.com/dshills/trainconf/internal/config/tree"
)

// EntryPoint is the global function a script must define.
const EntryPoint = "scale"

// DefaultTimeout bounds a single Apply call.
const DefaultTimeout = 5 * time.Second

// ErrNoEntryPoint indicates a script does not define the scale function.
var ErrNoEntryPoint = errors.New("script does not define function " + EntryPoint)

// Strategy is a scale.Strategy backed by a compiled Lua chunk.
//
// Each Apply runs in a fresh Lua state, so a Strategy is safe for
// concurrent use.
type Strategy struct {
	name    string
	proto   *lua.FunctionProto
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithTimeout bounds a single Apply call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Strategy) {
		s.timeout = d
	}
}

// WithLogger sets the logger that receives print output and registration
// events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Strategy) {
		s.logger = logger
	}
}

// Compile compiles Lua source into a strategy called name.
func Compile(name, source string, opts ...Option) (*Strategy, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compiling script %s: %w", name, err)
	}

	s := &Strategy{name: name, proto: proto, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	// Fail at load time rather than on first scale.
	L := s.newState(context.Background())
	defer L.Close()
	if _, err := s.entryPoint(L); err != nil {
		return nil, err
	}
	return s, nil
}

// Load compiles the script at path into a strategy called name.
func Load(name, path string, opts ...Option) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	return Compile(name, string(data), opts...)
}

// RegisterDir registers every *.lua file in dir under its file stem and
// returns the registered names in order.
func RegisterDir(reg *scale.Registry, dir string, opts ...Option) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	names := make([]string, 0, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".lua")
		s, err := Load(name, path, opts...)
		if err != nil {
			return names, err
		}
		if err := reg.Register(name, s); err != nil {
			return names, err
		}
		s.logger.Debug("Registered scaling script",
			slog.String("strategy", name),
			slog.String("path", path))
		names = append(names, name)
	}
	return names, nil
}

// Name returns the strategy name.
func (s *Strategy) Name() string {
	return s.name
}

// Apply implements scale.Strategy.
func (s *Strategy) Apply(cfg *tree.Tree, newWorldSize int) error {
	old, err := cfg.Int(scale.ReferencePath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	L := s.newState(ctx)
	defer L.Close()

	fn, err := s.entryPoint(L)
	if err != nil {
		return err
	}
	err = L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
		newConfigTable(L, cfg),
		lua.LNumber(old),
		lua.LNumber(newWorldSize))
	if err != nil {
		return fmt.Errorf("script %s: %w", s.name, err)
	}
	return nil
}

// newState creates a sandboxed state with the chunk already executed.
// Errors while executing the chunk surface from entryPoint.
func (s *Strategy) newState(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	installSandbox(L, s.logger.With(slog.String("strategy", s.name)))
	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		L.SetGlobal(EntryPoint, lua.LNil)
		L.SetGlobal(chunkErrorKey, lua.LString(err.Error()))
	}
	return L
}

const chunkErrorKey = "__chunk_error"

func (s *Strategy) entryPoint(L *lua.LState) (*lua.LFunction, error) {
	if msg, ok := L.GetGlobal(chunkErrorKey).(lua.LString); ok {
		return nil, fmt.Errorf("running script %s: %s", s.name, string(msg))
	}
	fn, ok := L.GetGlobal(EntryPoint).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, s.name)
	}
	return fn, nil
}
