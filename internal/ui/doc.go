// Package ui renders the console stores as a Bubble Tea terminal UI.
//
// # Views
//
// Five views are available, selected with 1-5 or tab:
//
//   - vms: virtual machines, filtered by the shared search
//   - pools: storage pools with capacity and usage
//   - isos: ISO images sorted by name
//   - networks: virtual networks
//   - pods: kubernetes pods in the selected namespace
//
// The header shows VM resource totals, whether the state feed is live, the
// global loading indicator and upload progress. Notifications stack above
// the footer; x dismisses the newest.
//
// # Actions
//
// On the vms view, s/S/K/r/p/u start, stop, force stop, restart, pause and
// resume the selected VM. d asks for confirmation, then deletes the selected
// VM, ISO or pod. Outcomes are reported through notifications.
//
// # Theme
//
// T toggles between dark and light. With the auto preference the terminal
// background decides; TermScheme rechecks it whenever the terminal regains
// focus.
//
// The UI holds no domain state. Every frame reads the stores directly, so
// polling, WebSocket patches and optimistic writes show up on the next tick.
package ui
