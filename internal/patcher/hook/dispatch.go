package hook

import (
	"github.com/dshills/patchwork/internal/patcher/host"
)

// Intercept implements host.Interceptor. It runs on the caller's goroutine
// every time the host calls the patched routine.
func (ts *targetState) Intercept(site *host.CallSite, this any, args []any) (any, error) {
	s := ts.snap.Load()
	if s == nil {
		// Detached between the site's load and now.
		return site.CallOriginal(this, args)
	}
	return s.dispatch(ts, site, this, args)
}

// dispatch runs one call through a stable snapshot:
//  1. Before hooks in order; a short-circuit returns immediately.
//  2. The active InsteadOf hook, if any, produces the result.
//  3. Otherwise the original body runs with the possibly rewritten args.
//  4. After hooks in order, each able to replace the result.
func (s *snapshot) dispatch(ts *targetState, site *host.CallSite, this any, args []any) (any, error) {
	call := &Call{Target: ts.target, This: this, Args: args}

	for _, e := range s.before {
		out, err := e.callback(call)
		if err != nil {
			return nil, err
		}
		if out.short {
			return out.value, nil
		}
	}

	if s.instead != nil {
		out, err := s.instead.callback(call)
		if err != nil {
			return nil, err
		}
		if out.short {
			call.result = out.value
		}
	} else {
		res, err := site.CallOriginal(this, call.Args)
		if err != nil {
			return res, err
		}
		call.result = res
	}

	for _, e := range s.after {
		out, err := e.callback(call)
		if err != nil {
			return nil, err
		}
		if out.short {
			return out.value, nil
		}
	}

	return call.result, nil
}
