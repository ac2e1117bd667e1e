package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/patchwork/internal/patcher/hook"
	"github.com/dshills/patchwork/internal/patcher/signature"
	"github.com/dshills/patchwork/internal/plugin"
)

// Plugin runs one Lua script as a plugin.
type Plugin struct {
	name    string
	path    string
	source  string
	timeout time.Duration

	mu    sync.Mutex
	state *State
}

// Option configures a script plugin.
type Option func(*Plugin)

// WithTimeout bounds script load and each hook invocation.
func WithTimeout(d time.Duration) Option {
	return func(p *Plugin) {
		p.timeout = d
	}
}

// FromFile creates a plugin that runs the script at path. The plugin is named
// after the file without its extension.
func FromFile(path string, opts ...Option) *Plugin {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p := &Plugin{name: name, path: path}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromSource creates a plugin that runs src.
func FromSource(name, src string, opts ...Option) *Plugin {
	p := &Plugin{name: name, source: src}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return p.name
}

// Start creates a fresh state, exposes the host API and runs the script.
func (p *Plugin) Start(ctx context.Context, env *plugin.Env) error {
	src := p.source
	if p.path != "" {
		data, err := os.ReadFile(p.path)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		src = string(data)
	}

	st := NewState(WithExecutionTimeout(p.timeout))
	api := &hostAPI{env: env, state: st, types: NewTypeIndex(env.Catalog)}
	api.install()

	if err := st.DoString(src); err != nil {
		st.Close()
		return fmt.Errorf("run script %s: %w", p.name, err)
	}

	p.mu.Lock()
	p.state = st
	p.mu.Unlock()
	return nil
}

// Stop revokes the script's hooks and closes its state.
func (p *Plugin) Stop(ctx context.Context, env *plugin.Env) error {
	env.Patcher.UnpatchAll()

	p.mu.Lock()
	st := p.state
	p.state = nil
	p.mu.Unlock()

	if st != nil {
		return st.Close()
	}
	return nil
}

// hostAPI binds the globals a script sees to one plugin environment.
type hostAPI struct {
	env   *plugin.Env
	state *State
	types *TypeIndex
}

func (a *hostAPI) install() {
	a.state.RegisterFunc("patch", a.patch)
	a.state.RegisterFunc("print", a.print)
	a.state.RegisterModule("settings", map[string]lua.LGFunction{
		"bool":   a.settingsBool,
		"string": a.settingsString,
	})
	a.state.RegisterModule("log", map[string]lua.LGFunction{
		"debug": a.logFunc(a.env.Logger.Debug),
		"info":  a.logFunc(a.env.Logger.Info),
		"warn":  a.logFunc(a.env.Logger.Warn),
	})
}

// patch declares a hook. It returns true on success, or nil and a message
// when the target could not be resolved or installed.
func (a *hostAPI) patch(L *lua.LState) int {
	decl := L.CheckTable(1)

	className, ok := decl.RawGetString("class").(lua.LString)
	if !ok {
		L.ArgError(1, "class is required")
		return 0
	}
	fn, ok := decl.RawGetString("fn").(*lua.LFunction)
	if !ok {
		L.ArgError(1, "fn is required")
		return 0
	}
	kind, err := parseKind(decl.RawGetString("kind"))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	sig, err := a.signature(decl)
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}

	feature := string(className) + "." + sig.String()
	if name, ok := decl.RawGetString("feature").(lua.LString); ok {
		feature = string(name)
	}

	c, ok := a.env.Catalog.Class(string(className))
	if !ok {
		a.env.Logger.Debug("%s: class %s not found", feature, className)
		L.Push(lua.LNil)
		L.Push(lua.LString("class not found"))
		return 2
	}
	target, err := a.env.Patcher.Resolve(feature, c, sig)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if _, err := a.env.Patcher.Patch(target, kind, a.callback(target, fn)); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// signature builds a signature from the name, params, arity and result
// fields of decl.
func (a *hostAPI) signature(decl *lua.LTable) (signature.Signature, error) {
	var sig signature.Signature
	if name, ok := decl.RawGetString("name").(lua.LString); ok {
		sig.Name = string(name)
	}

	params, _ := decl.RawGetString("params").(*lua.LTable)
	if params != nil {
		for i := 1; i <= params.Len(); i++ {
			tn, ok := params.RawGetInt(i).(lua.LString)
			if !ok {
				return sig, fmt.Errorf("%w: params[%d] is not a type name", ErrInvalidPatch, i)
			}
			if tn == "_" {
				continue
			}
			t, err := a.types.Lookup(string(tn))
			if err != nil {
				return sig, err
			}
			sig.Params = append(sig.Params, signature.At(i-1, t))
		}
		sig.Arity = params.Len()
	}
	if n, ok := decl.RawGetString("arity").(lua.LNumber); ok {
		sig.Arity = int(n)
	}
	if rn, ok := decl.RawGetString("result").(lua.LString); ok {
		t, err := a.types.Lookup(string(rn))
		if err != nil {
			return sig, err
		}
		sig.Result = t
	}
	return sig, sig.Validate()
}

// callback adapts a Lua function into a hook callback.
func (a *hostAPI) callback(target *signature.Target, fn *lua.LFunction) hook.Callback {
	method := target.Method()
	return func(call *hook.Call) (hook.Outcome, error) {
		var ret lua.LValue = lua.LNil
		err := a.state.Do(func(L *lua.LState) error {
			obj := newCallObject(L, &frame{call: call, method: method})
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, obj); err != nil {
				return err
			}
			ret = L.Get(-1)
			L.Pop(1)
			return nil
		})
		if err != nil {
			return hook.Outcome{}, fmt.Errorf("%s hook on %s: %w", a.env.Patcher.Owner(), target, err)
		}
		if ret == lua.LNil {
			return hook.Continue(), nil
		}
		v, err := FromLua(ret, method.Result)
		if err != nil {
			return hook.Outcome{}, fmt.Errorf("%s hook on %s: %w", a.env.Patcher.Owner(), target, err)
		}
		return hook.ShortCircuit(v), nil
	}
}

func (a *hostAPI) settingsBool(L *lua.LState) int {
	key := L.CheckString(1)
	def := L.OptBool(2, false)
	L.Push(lua.LBool(a.env.Settings.Bool(key, def)))
	return 1
}

func (a *hostAPI) settingsString(L *lua.LState) int {
	key := L.CheckString(1)
	def := L.OptString(2, "")
	L.Push(lua.LString(a.env.Settings.String(key, def)))
	return 1
}

func (a *hostAPI) logFunc(log func(msg string, args ...any)) lua.LGFunction {
	return func(L *lua.LState) int {
		log("%s", joinArgs(L))
		return 0
	}
}

func (a *hostAPI) print(L *lua.LState) int {
	a.env.Logger.Info("%s", joinArgs(L))
	return 0
}

func joinArgs(L *lua.LState) string {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	return strings.Join(parts, "\t")
}

func parseKind(lv lua.LValue) (hook.Kind, error) {
	s, _ := lv.(lua.LString)
	switch s {
	case "before":
		return hook.Before, nil
	case "instead":
		return hook.InsteadOf, nil
	case "after", "":
		return hook.After, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidPatch, string(s))
}
