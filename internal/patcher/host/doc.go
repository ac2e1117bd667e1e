// Package host defines the extension surface a host application exposes to
// patchwork.
//
// A host cooperates by declaring its classes and their callables in declared
// order and by routing every call to a patchable routine through a CallSite.
// A CallSite runs the original body until an Interceptor is attached to it;
// afterwards every call is handed to the interceptor, which decides whether
// and how the original body runs.
//
// Example:
//
//	zoom := host.NewClass("b.f.l.b.c").
//		Declare("f", ctl.limitScale).
//		Build()
//
//	// Host code calls through the site, never the func directly.
//	limited, err := zoom.Method("f").Site.Invoke(ctl, m, scale, focus, flags)
//
// Method names may be obfuscated and change between host builds, so plugins
// are expected to find methods with the signature package instead of by name.
package host
