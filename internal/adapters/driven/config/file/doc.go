// Package file implements the configuration store on a TOML file.
//
// Configuration lives at ~/.ragengine/config.toml by default. Nested
// tables are flattened into dot-notation keys on load ("rag.enabled",
// "watcher.directory") and folded back into tables on save, so the
// file stays hand-editable.
package file
