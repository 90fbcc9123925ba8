// Package uistate holds the console's process-wide UI state.
//
// Preferences (theme, language, sidebar, notification sound, compact mode,
// line numbers, font size) are persisted one key each under "vapor:ui:*" and
// combined into a read-only Preferences view. Everything else is transient
// and cleared by Reset, which also runs on auth:logout.
//
// Notifications with a positive duration are dismissed by a timer held in a
// timers.Registry keyed by notification id, so each live notification has at
// most one timer and Dismiss always cancels it before removing the entry.
//
// The auto theme follows a ColorScheme only while the preference is auto; at
// most one scheme subscription exists at any time.
package uistate
