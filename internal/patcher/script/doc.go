// Package script lets Lua scripts install hooks.
//
// A script runs once at plugin start inside a sandboxed gopher-lua state and
// declares its hooks with the global patch function:
//
//	patch {
//	    class  = "b.f.l.b.c",
//	    name   = "f",
//	    params = {"*hostapp.Matrix", "float32", "float32", "int"},
//	    kind   = "instead",
//	    fn     = function(call)
//	        local m = call:arg(1)
//	        return m.ScaleX * call:arg(2) > 4
//	    end,
//	}
//
// params lists parameter type names in declared order; "_" leaves a position
// unconstrained. name may be omitted to match on shape alone. kind is one of
// "before", "instead" or "after".
//
// The hook function receives a call object with arg, set_arg, result and
// set_result methods. Returning a non-nil value ends the call with that
// value. Struct pointers are exposed as objects whose exported fields can be
// read and assigned.
//
// Scripts also see settings.bool, settings.string and log.debug, log.info,
// log.warn. print writes to the plugin log.
//
// The state is serialized by a mutex and each hook invocation runs under a
// timeout. A hook must not cause the host to call back into a routine the
// same script has patched.
package script
