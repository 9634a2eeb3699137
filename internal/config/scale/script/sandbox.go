package script

import (
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

func openSafeLibraries(L *lua.LState) {
	// io, os, debug and package are never opened.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

func installSandbox(L *lua.LState, logger *slog.Logger) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		logger.Info(strings.Join(parts, "\t"))
		return 0
	}))
}
