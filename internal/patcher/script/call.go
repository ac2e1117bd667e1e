package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/host"
)

// frame is the Go side of a call object.
type frame struct {
	call   *hook.Call
	method *host.Method
}

var callMethods = map[string]lua.LGFunction{
	"arg":        callArg,
	"set_arg":    callSetArg,
	"result":     callResult,
	"set_result": callSetResult,
	"nargs":      callNargs,
	"method":     callMethodName,
}

func newCallObject(L *lua.LState, f *frame) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = f
	L.SetMetatable(ud, L.GetTypeMetatable(callTypeName))
	return ud
}

func checkFrame(L *lua.LState) *frame {
	ud := L.CheckUserData(1)
	f, ok := ud.Value.(*frame)
	if !ok {
		L.ArgError(1, "call expected")
		return nil
	}
	return f
}

// checkArgIndex returns the zero-based index of the 1-based argument at
// stack position 2.
func checkArgIndex(L *lua.LState, f *frame) int {
	i := L.CheckInt(2)
	if i < 1 || i > len(f.call.Args) {
		L.ArgError(2, "argument index out of range")
		return 0
	}
	return i - 1
}

func callArg(L *lua.LState) int {
	f := checkFrame(L)
	i := checkArgIndex(L, f)
	L.Push(ToLua(L, f.call.Args[i]))
	return 1
}

func callSetArg(L *lua.LState) int {
	f := checkFrame(L)
	i := checkArgIndex(L, f)
	v, err := FromLua(L.Get(3), f.method.Params[i])
	if err != nil {
		L.ArgError(3, err.Error())
		return 0
	}
	f.call.Args[i] = v
	return 0
}

func callResult(L *lua.LState) int {
	f := checkFrame(L)
	L.Push(ToLua(L, f.call.Result()))
	return 1
}

func callSetResult(L *lua.LState) int {
	f := checkFrame(L)
	v, err := FromLua(L.Get(2), f.method.Result)
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	f.call.SetResult(v)
	return 0
}

func callNargs(L *lua.LState) int {
	f := checkFrame(L)
	L.Push(lua.LNumber(len(f.call.Args)))
	return 1
}

func callMethodName(L *lua.LState) int {
	f := checkFrame(L)
	L.Push(lua.LString(f.method.Name))
	return 1
}
