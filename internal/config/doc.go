// Package config holds patchwork's persisted settings.
//
// A Store is a flat key/value table backed by a TOML or YAML file. The only
// setting the core depends on is KeyRemoveMaxRes, a boolean that gates the
// decode-size patch; components read it through Store.Bool and change it
// through Store.SetBool, and never cache it elsewhere.
//
// # Change notification
//
// Every effective change is published through the notify sub-package after
// the store's lock is released. Writing the value a key already holds is a
// no-op and publishes nothing:
//
//	store.SubscribeKey(config.KeyRemoveMaxRes, func(c notify.Change) {
//	    enabled, _ := c.New.(bool)
//	    apply(enabled)
//	})
//
// # Live reload
//
// Start watches the backing file with fsnotify (see the watcher
// sub-package). An external edit triggers Reload, which diffs the file
// against the current values and publishes one change per differing key with
// source notify.SourceFile.
//
// # Sub-packages
//
//   - loader: settings file encoding (TOML, YAML) and atomic writes
//   - watcher: file watching for live reload
//   - notify: change notification
package config
