package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds one script run or hook invocation.
const DefaultExecutionTimeout = 2 * time.Second

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe; every entry point takes mu.
type State struct {
	L *lua.LState

	mu       sync.Mutex
	timeout  time.Duration
	watchdog *watchdog
	closed   bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the timeout for each script run and hook call.
// The timeout is enforced by one timer per State that is re-armed for each
// run, so a hook call does not allocate a context or timer.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{timeout: DefaultExecutionTimeout, watchdog: newWatchdog()}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(s.L)
	installSandbox(s.L)
	registerTypes(s.L)
	return s
}

// openSafeLibraries opens only libraries without filesystem or process
// access.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// DoString runs code under the execution timeout.
func (s *State) DoString(code string) error {
	return s.run(func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// Do runs fn with exclusive access to the state under the execution timeout.
func (s *State) Do(fn func(L *lua.LState) error) error {
	return s.run(fn)
}

func (s *State) run(fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	w := s.watchdog
	w.arm(s.timeout)
	s.L.SetContext(w)
	defer func() {
		s.L.RemoveContext()
		expired := w.disarm()
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
		if err != nil && expired {
			err = fmt.Errorf("%w: %v", ErrExecutionTimeout, err)
		}
	}()

	return fn(s.L)
}

// watchdog is the context a State runs under. Its Done channel closes when
// an armed run outlives its deadline. It is re-armed for every run and its
// channel is replaced only after a run that expired.
//
// done is read without the lock by the running script; it is written only by
// disarm, which runs on the same goroutine after the script has returned.
type watchdog struct {
	mu       sync.Mutex
	done     chan struct{}
	timer    *time.Timer
	deadline time.Time
	armed    bool
	expired  bool
}

func newWatchdog() *watchdog {
	w := &watchdog{done: make(chan struct{})}
	w.timer = time.AfterFunc(time.Hour, w.fire)
	w.timer.Stop()
	return w
}

func (w *watchdog) arm(d time.Duration) {
	w.mu.Lock()
	w.deadline = time.Now().Add(d)
	w.armed = true
	w.mu.Unlock()
	w.timer.Reset(d)
}

// disarm stops the timer and reports whether the run expired.
func (w *watchdog) disarm() bool {
	w.timer.Stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	expired := w.expired
	if expired {
		w.done = make(chan struct{})
		w.expired = false
	}
	return expired
}

// fire ignores callbacks of a timer armed for an earlier run.
func (w *watchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || w.expired || time.Now().Before(w.deadline) {
		return
	}
	w.expired = true
	close(w.done)
}

func (w *watchdog) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (w *watchdog) Done() <-chan struct{} {
	return w.done
}

func (w *watchdog) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.expired {
		return context.DeadlineExceeded
	}
	return nil
}

func (w *watchdog) Value(any) any {
	return nil
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.SetGlobal(name, value)
	}
}

// RegisterModule registers a global table of functions.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.SetGlobal(name, s.L.SetFuncs(s.L.NewTable(), funcs))
	}
}

// RegisterFunc registers a global function.
func (s *State) RegisterFunc(name string, fn lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.SetGlobal(name, s.L.NewFunction(fn))
	}
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the state. It is safe to call more than once.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.L.Close()
	s.watchdog.timer.Stop()
	s.closed = true
	return nil
}
