package script

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/trainconf/internal/config/tree"
)

// newConfigTable exposes cfg to Lua as a table of methods.
func newConfigTable(L *lua.LState, cfg *tree.Tree) *lua.LTable {
	t := L.NewTable()

	L.SetField(t, "get", L.NewFunction(func(L *lua.LState) int {
		v, ok := cfg.GetByPath(L.CheckString(2))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(toLua(L, v))
		return 1
	}))

	L.SetField(t, "has", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(cfg.Has(L.CheckString(2))))
		return 1
	}))

	L.SetField(t, "set", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(2)
		current, _ := cfg.GetByPath(path)
		v, err := fromLua(L.CheckAny(3), current)
		if err != nil {
			L.RaiseError("set %s: %s", path, err.Error())
			return 0
		}
		if err := cfg.Set(path, v); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))

	return t
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		return mapToLua(L, val)
	case *tree.Tree:
		return mapToLua(L, val.AsMap())
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

func mapToLua(L *lua.LState, m map[string]any) *lua.LTable {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := L.CreateTable(0, len(m))
	for _, k := range keys {
		t.RawSetString(k, toLua(L, m[k]))
	}
	return t
}

// fromLua converts lv for storage at a leaf currently holding current.
// Integral numbers become int64 unless the leaf holds a float.
func fromLua(lv lua.LValue, current any) (any, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LString:
		return string(v), nil
	case lua.LNumber:
		f := float64(v)
		if _, isFloat := current.(float64); isFloat {
			return f, nil
		}
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<63 {
			return int64(f), nil
		}
		return f, nil
	case *lua.LTable:
		return tableFromLua(v, current)
	default:
		return nil, fmt.Errorf("unsupported Lua value of type %s", lv.Type())
	}
}

func tableFromLua(t *lua.LTable, current any) (any, error) {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if count == n {
		items, _ := current.([]any)
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			var cur any
			if i <= len(items) {
				cur = items[i-1]
			}
			v, err := fromLua(t.RawGetInt(i), cur)
			if err != nil {
				return nil, err
			}
			out[i-1] = v
		}
		return out, nil
	}

	var curMap map[string]any
	switch c := current.(type) {
	case *tree.Tree:
		curMap = c.AsMap()
	case map[string]any:
		curMap = c
	}

	out := make(map[string]any, count)
	var convErr error
	t.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			convErr = fmt.Errorf("table keys must be strings, got %s", k.Type())
			return
		}
		val, err := fromLua(v, curMap[string(key)])
		if err != nil {
			convErr = err
			return
		}
		out[string(key)] = val
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}
