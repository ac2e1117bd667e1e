// Package plugin runs patchwork plugins against a host application.
//
// A Plugin installs its hooks in Start and removes them in Stop. The Manager
// gives every plugin its own Patcher, settings view and logger through an Env,
// and always calls Patcher.UnpatchAll after Stop returns, so no interceptor
// outlives its plugin even when Stop forgets to clean up or fails.
//
// Lifecycle:
//
//	loaded -> activating -> active -> deactivating -> loaded
//	                 \-> error (Start failed; partial hooks are revoked)
//
// Example:
//
//	mgr := plugin.NewManager(plugin.ManagerConfig{
//	    Catalog:  app.Catalog(),
//	    Settings: store,
//	    Registry: hook.NewRegistry(),
//	})
//	mgr.Load(zoomlimit.New())
//	if err := mgr.ActivateAll(ctx); err != nil {
//	    // some plugin failed; the others are active
//	}
//	defer mgr.DeactivateAll(ctx)
package plugin
