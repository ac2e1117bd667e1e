package script

import (
	"errors"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func global(t *testing.T, s *State, code, name string) lua.LValue {
	t.Helper()
	var v lua.LValue
	err := s.Do(func(L *lua.LState) error {
		if err := L.DoString(code); err != nil {
			return err
		}
		v = L.GetGlobal(name)
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	return v
}

func TestSandboxRemovesLoaders(t *testing.T) {
	s := NewState()
	defer s.Close()

	v := global(t, s, `ok = dofile == nil and loadfile == nil and load == nil and loadstring == nil`, "ok")
	if v != lua.LTrue {
		t.Error("loaders are still reachable")
	}
	v = global(t, s, `ok = io == nil and os == nil and debug == nil`, "ok")
	if v != lua.LTrue {
		t.Error("unsafe libraries are open")
	}
}

func TestSandboxRequire(t *testing.T) {
	s := NewState()
	defer s.Close()

	v := global(t, s, `local m = require("math"); ok = m.floor(2.5)`, "ok")
	if v != lua.LNumber(2) {
		t.Errorf("require(math) result = %v", v)
	}

	for _, mod := range []string{"os", "io", "debug", "mymodule"} {
		if err := s.DoString(`require("` + mod + `")`); err == nil {
			t.Errorf("require(%q) succeeded", mod)
		}
	}
}

func TestStateTimeout(t *testing.T) {
	s := NewState(WithExecutionTimeout(50 * time.Millisecond))
	defer s.Close()

	err := s.DoString(`while true do end`)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("DoString() error = %v, want ErrExecutionTimeout", err)
	}

	// The state stays usable after a timeout.
	if err := s.DoString(`x = 1`); err != nil {
		t.Errorf("DoString() after timeout error = %v", err)
	}
}

func TestStateReusesWatchdog(t *testing.T) {
	s := NewState(WithExecutionTimeout(50 * time.Millisecond))
	defer s.Close()

	done := s.watchdog.Done()
	for i := 0; i < 100; i++ {
		if err := s.DoString(`x = 1`); err != nil {
			t.Fatalf("DoString() error = %v", err)
		}
	}
	if s.watchdog.Done() != done {
		t.Error("watchdog channel replaced without a timeout")
	}

	if err := s.DoString(`while true do end`); !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("DoString() error = %v, want ErrExecutionTimeout", err)
	}
	if s.watchdog.Done() == done {
		t.Error("expired watchdog channel was not replaced")
	}
	if err := s.watchdog.Err(); err != nil {
		t.Errorf("Err() after disarm = %v, want nil", err)
	}

	// A timer left over from an earlier run must not cut a later one short.
	time.Sleep(60 * time.Millisecond)
	err := s.Do(func(L *lua.LState) error {
		time.Sleep(10 * time.Millisecond)
		return L.DoString(`for i = 1, 1000 do end`)
	})
	if err != nil {
		t.Errorf("Do() error = %v", err)
	}
}

func TestStateClose(t *testing.T) {
	s := NewState()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !s.Closed() {
		t.Error("Closed() = false")
	}
	if err := s.DoString(`x = 1`); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString() error = %v, want ErrStateClosed", err)
	}
	// No-ops on a closed state.
	s.SetGlobal("x", lua.LNumber(1))
	s.RegisterFunc("f", func(*lua.LState) int { return 0 })
}

func TestStateRecoversPanics(t *testing.T) {
	s := NewState()
	defer s.Close()

	err := s.Do(func(*lua.LState) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("Do() swallowed the panic")
	}
}
