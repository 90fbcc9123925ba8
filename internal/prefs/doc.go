// Package prefs stores console preferences, auth tokens and collection caches.
//
// Every key is persisted independently: Set and Delete rewrite the TOML file
// immediately, so a crash never loses an earlier key. Unreadable files are
// treated as empty rather than failing startup.
//
// Watch follows the file with fsnotify and reloads it when another console
// instance writes, notifying Subscribe callbacks for each key that changed.
//
// Persistent, String and Bool expose keys as state atoms.
package prefs
