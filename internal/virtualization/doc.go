// Package virtualization holds the client-side stores for the virtualization
// screens: VMs, storage pools, ISO images, templates, networks and backups,
// plus the view state around them (selection, wizard, upload, consoles) and
// the values derived from both.
//
// VM lifecycle actions patch the expected state locally once the backend
// accepts them. The Watcher applies the backend's state-change feed on top.
package virtualization
