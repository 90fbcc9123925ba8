package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit        key.Binding
	Help        key.Binding
	ToggleTheme key.Binding
	Tab         key.Binding
	ShiftTab    key.Binding
	Escape      key.Binding
	Refresh     key.Binding
	Dismiss     key.Binding
	Logout      key.Binding

	// View switching
	ViewVMs      key.Binding
	ViewPools    key.Binding
	ViewISOs     key.Binding
	ViewNetworks key.Binding
	ViewPods     key.Binding
	ViewIfaces   key.Binding

	// VM actions
	Start     key.Binding
	Stop      key.Binding
	ForceStop key.Binding
	Restart   key.Binding
	Pause     key.Binding
	Resume    key.Binding
	Delete    key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Search/input
	Search  key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		ToggleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Toggle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Next view"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "Previous view"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Clear search"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Refresh"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Dismiss notification"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Log out"),
		),

		ViewVMs: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "VMs"),
		),
		ViewPools: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Pools"),
		),
		ViewISOs: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "ISOs"),
		),
		ViewNetworks: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "Networks"),
		),
		ViewPods: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "Pods"),
		),
		ViewIfaces: key.NewBinding(
			key.WithKeys("6"),
			key.WithHelp("6", "Host interfaces"),
		),

		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Start VM / link up"),
		),
		Stop: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "Stop VM / link down"),
		),
		ForceStop: key.NewBinding(
			key.WithKeys("K"),
			key.WithHelp("K", "Force stop VM"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Restart VM"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Pause VM"),
		),
		Resume: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Resume VM"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Delete selected"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter", "y"),
			key.WithHelp("enter/y", "Confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "n"),
			key.WithHelp("esc/n", "Cancel"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Search, k.Delete, k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewVMs, k.ViewPools, k.ViewISOs, k.ViewNetworks, k.ViewPods, k.ViewIfaces, k.Tab},
		{k.Up, k.Down, k.Top, k.Bottom, k.Search, k.Escape},
		{k.Start, k.Stop, k.ForceStop, k.Restart, k.Pause, k.Resume, k.Delete},
		{k.Refresh, k.Dismiss, k.ToggleTheme, k.Logout, k.Help, k.Quit},
	}
}
