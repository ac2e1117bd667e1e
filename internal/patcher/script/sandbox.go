package script

import (
	lua "github.com/yuin/gopher-lua"
)

// safeModules may be loaded with require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// installSandbox removes loaders that reach the filesystem or compile
// arbitrary chunks and replaces require with a whitelist.
func installSandbox(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	require := L.GetGlobal("require")
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(require)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}
