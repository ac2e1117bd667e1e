package script

import (
	"fmt"
	"math"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// Metatable names.
const (
	objectTypeName = "patchwork.object"
	callTypeName   = "patchwork.call"
)

// registerTypes installs the metatables used by ToLua and call objects.
func registerTypes(L *lua.LState) {
	obj := L.NewTypeMetatable(objectTypeName)
	L.SetField(obj, "__index", L.NewFunction(objectIndex))
	L.SetField(obj, "__newindex", L.NewFunction(objectNewIndex))
	L.SetField(obj, "__tostring", L.NewFunction(objectString))

	call := L.NewTypeMetatable(callTypeName)
	L.SetField(call, "__index", L.SetFuncs(L.NewTable(), callMethods))
}

// ToLua converts a Go value for a script. Pointers to structs become objects
// that share the Go value; struct values become tables.
func ToLua(L *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	if lv, ok := v.(lua.LValue); ok {
		return lv
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
		if rv.Elem().Kind() == reflect.Struct {
			ud := L.NewUserData()
			ud.Value = v
			L.SetMetatable(ud, L.GetTypeMetatable(objectTypeName))
			return ud
		}
		return ToLua(L, rv.Elem().Interface())
	case reflect.Struct:
		t := L.NewTable()
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if f := rt.Field(i); f.IsExported() {
				t.RawSetString(f.Name, ToLua(L, rv.Field(i).Interface()))
			}
		}
		return t
	case reflect.Slice, reflect.Array:
		t := L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, ToLua(L, rv.Index(i).Interface()))
		}
		return t
	default:
		ud := L.NewUserData()
		ud.Value = v
		return ud
	}
}

// FromLua converts lv to a Go value of type t. A nil t accepts only nil.
func FromLua(lv lua.LValue, t reflect.Type) (any, error) {
	if t == nil {
		if lv == lua.LNil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s to no value", ErrConversion, lv.Type())
	}
	if lv == lua.LNil {
		return reflect.Zero(t).Interface(), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		if b, ok := lv.(lua.LBool); ok {
			return reflect.ValueOf(bool(b)).Convert(t).Interface(), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, ok := lv.(lua.LNumber); ok {
			return integerFromLua(float64(n), t)
		}
	case reflect.Float32, reflect.Float64:
		if n, ok := lv.(lua.LNumber); ok {
			return reflect.ValueOf(float64(n)).Convert(t).Interface(), nil
		}
	case reflect.String:
		if s, ok := lv.(lua.LString); ok {
			return reflect.ValueOf(string(s)).Convert(t).Interface(), nil
		}
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return toGo(lv), nil
		}
	}

	if ud, ok := lv.(*lua.LUserData); ok && ud.Value != nil {
		if reflect.TypeOf(ud.Value).AssignableTo(t) {
			return ud.Value, nil
		}
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrConversion, lv.Type(), t)
}

// integerFromLua converts a Lua number to an integer kind. Fractional and
// out-of-range values are rejected rather than truncated or wrapped.
func integerFromLua(f float64, t reflect.Type) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: %v is not an integer", ErrConversion, f)
	}
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f < 0 || f >= 1<<64 || v.OverflowUint(uint64(f)) {
			return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, f, t)
		}
		v.SetUint(uint64(f))
	default:
		if f < math.MinInt64 || f >= 1<<63 || v.OverflowInt(int64(f)) {
			return nil, fmt.Errorf("%w: %v out of range for %s", ErrConversion, f, t)
		}
		v.SetInt(int64(f))
	}
	return v.Interface(), nil
}

// checkObject returns the struct an object userdata points at.
func checkObject(L *lua.LState) (reflect.Value, bool) {
	ud := L.CheckUserData(1)
	rv := reflect.ValueOf(ud.Value)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return rv.Elem(), true
}

func objectIndex(L *lua.LState) int {
	sv, ok := checkObject(L)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	name := L.CheckString(2)
	f, found := sv.Type().FieldByName(name)
	if !found || !f.IsExported() {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(ToLua(L, sv.FieldByIndex(f.Index).Interface()))
	return 1
}

func objectNewIndex(L *lua.LState) int {
	sv, ok := checkObject(L)
	if !ok {
		L.RaiseError("not an object")
		return 0
	}
	name := L.CheckString(2)
	f, found := sv.Type().FieldByName(name)
	if !found || !f.IsExported() {
		L.RaiseError("no field %q on %s", name, sv.Type())
		return 0
	}
	v, err := FromLua(L.Get(3), f.Type)
	if err != nil {
		L.RaiseError("field %s: %v", name, err)
		return 0
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		rv = reflect.Zero(f.Type)
	}
	sv.FieldByIndex(f.Index).Set(rv)
	return 0
}

func objectString(L *lua.LState) int {
	ud := L.CheckUserData(1)
	L.Push(lua.LString(fmt.Sprintf("%+v", ud.Value)))
	return 1
}

// toGo converts lv without a target type.
func toGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}
