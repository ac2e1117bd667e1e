// Package hook installs interceptors on resolved patch targets and dispatches
// intercepted calls through them.
//
// Three kinds of hooks can be attached to a target:
//   - Before hooks run first, in registration order. They may rewrite the
//     call's arguments, or short-circuit the call with a substitute result.
//   - InsteadOf hooks replace the original body. Only the most recently
//     installed one is active; older ones stay registered and take over again
//     when the newer one is revoked.
//   - After hooks run last, in registration order, each seeing and optionally
//     replacing the result of the previous stage.
//
// The first hook installed on a target attaches the registry to the target's
// call site. Revoking the last one detaches it again, restoring the original
// call behavior with nothing left in the call path.
//
// Example usage:
//
//	reg := hook.NewRegistry()
//	h, err := reg.Install(target, hook.After, func(c *hook.Call) (hook.Outcome, error) {
//		c.SetResult(strings.ToUpper(c.Result().(string)))
//		return hook.Continue(), nil
//	})
//	if err != nil {
//		return err
//	}
//	defer h.Revoke()
package hook
