package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/multierr"

	"github.com/five82/vapor-console/internal/auth"
	"github.com/five82/vapor-console/internal/kubernetes"
	"github.com/five82/vapor-console/internal/metrics"
	"github.com/five82/vapor-console/internal/network"
	"github.com/five82/vapor-console/internal/uistate"
	"github.com/five82/vapor-console/internal/virtualization"
)

// Options configures the UI.
type Options struct {
	Context        context.Context
	UI             *uistate.Service
	Virtualization *virtualization.Service
	Kubernetes     *kubernetes.Service // optional
	Network        *network.Service    // optional
	Metrics        *metrics.Service    // optional
	Tokens         *auth.Tokens        // optional; enables logout
	Scheme         *TermScheme         // optional; rechecked on focus
	RefreshEvery   time.Duration
	InitialView    View
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx    context.Context
	ui     *uistate.Service
	virt   *virtualization.Service
	kube   *kubernetes.Service
	net    *network.Service
	stats  *metrics.Service
	tokens *auth.Tokens
	scheme *TermScheme
	tick   time.Duration
	now    func() time.Time

	keys    keyMap
	current View
	width   int
	height  int
	ready   bool

	selected  int
	searching bool
	input     textinput.Model
	query     string

	modal    Modal
	showHelp bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.RefreshEvery
	if tick <= 0 {
		tick = time.Second
	}
	ui := opts.UI
	if ui == nil {
		ui = uistate.New(uistate.Options{})
	}

	input := textinput.New()
	input.Prompt = "/"
	input.Placeholder = "name or state"
	input.CharLimit = 64

	return Model{
		ctx:     ctx,
		ui:      ui,
		virt:    opts.Virtualization,
		kube:    opts.Kubernetes,
		net:     opts.Network,
		stats:   opts.Metrics,
		tokens:  opts.Tokens,
		scheme:  opts.Scheme,
		tick:    tick,
		now:     time.Now,
		keys:    DefaultKeyMap(),
		current: opts.InitialView,
		input:   input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd(m.tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		if m.scheme != nil {
			m.scheme.Recheck()
		}
		return m, nil

	case tickMsg:
		m.clampSelection()
		return m, tickCmd(m.tick)

	case actionDoneMsg, refreshDoneMsg:
		m.clampSelection()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme(), m.width, m.height)
	}
	return m.renderMain()
}

func (m Model) theme() Theme {
	return ThemeFor(m.ui.EffectiveTheme().Get())
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal != nil {
		next, cmd, closed := m.modal.Update(msg, m.keys)
		if closed {
			m.modal = nil
		} else {
			m.modal = next
		}
		return m, cmd
	}

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.ToggleTheme):
		m.ui.ToggleTheme()
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.switchView((m.current + 1) % View(len(viewNames)))
		return m, nil
	case key.Matches(msg, m.keys.ShiftTab):
		m.switchView((m.current + View(len(viewNames)) - 1) % View(len(viewNames)))
		return m, nil
	case key.Matches(msg, m.keys.ViewVMs):
		m.switchView(ViewVMs)
		return m, nil
	case key.Matches(msg, m.keys.ViewPools):
		m.switchView(ViewPools)
		return m, nil
	case key.Matches(msg, m.keys.ViewISOs):
		m.switchView(ViewISOs)
		return m, nil
	case key.Matches(msg, m.keys.ViewNetworks):
		m.switchView(ViewNetworks)
		return m, nil
	case key.Matches(msg, m.keys.ViewPods):
		m.switchView(ViewPods)
		return m, nil
	case key.Matches(msg, m.keys.ViewIfaces):
		m.switchView(ViewInterfaces)
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	case key.Matches(msg, m.keys.Dismiss):
		if ns := m.ui.Notifications().Get(); len(ns) > 0 {
			m.ui.Dismiss(ns[len(ns)-1].ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Logout):
		if m.tokens != nil {
			if err := m.tokens.Logout(); err != nil {
				m.ui.Error("Logout failed", err.Error())
			}
		}
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.input.SetValue(m.query)
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Escape):
		m.applyQuery("")
		return m, nil
	case key.Matches(msg, m.keys.Delete):
		m.confirmDelete()
		return m, nil
	}

	if m.current == ViewVMs {
		if cmd, ok := m.vmActionKey(msg); ok {
			return m, cmd
		}
	}
	if m.current == ViewInterfaces {
		if cmd, ok := m.linkKey(msg); ok {
			return m, cmd
		}
	}

	m.handleNavKey(msg)
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.input.Blur()
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.input.Blur()
		m.applyQuery("")
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.applyQuery(m.input.Value())
	return m, cmd
}

func (m *Model) handleNavKey(msg tea.KeyMsg) {
	count := len(m.tableFor(m.current, m.query).rows)
	if count == 0 {
		return
	}
	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selected < count-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = count - 1
	default:
		return
	}
	m.syncSelection()
}

func (m Model) vmActionKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	var action virtualization.Action
	switch {
	case key.Matches(msg, m.keys.Start):
		action = virtualization.ActionStart
	case key.Matches(msg, m.keys.Stop):
		action = virtualization.ActionStop
	case key.Matches(msg, m.keys.ForceStop):
		action = virtualization.ActionForceStop
	case key.Matches(msg, m.keys.Restart):
		action = virtualization.ActionRestart
	case key.Matches(msg, m.keys.Pause):
		action = virtualization.ActionPause
	case key.Matches(msg, m.keys.Resume):
		action = virtualization.ActionResume
	default:
		return nil, false
	}
	r, ok := m.selectedRow()
	if !ok {
		return nil, true
	}
	virt, ctx, id := m.virt, m.ctx, r.id
	return func() tea.Msg {
		return actionDoneMsg{err: virt.Perform(ctx, action, id)}
	}, true
}

// linkKey brings the selected host interface up or down.
func (m Model) linkKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	var up bool
	switch {
	case key.Matches(msg, m.keys.Start):
		up = true
	case key.Matches(msg, m.keys.Stop):
	default:
		return nil, false
	}
	r, ok := m.selectedRow()
	if !ok || m.net == nil {
		return nil, true
	}
	net, ui, ctx, name := m.net, m.ui, m.ctx, r.id
	return func() tea.Msg {
		err := net.ToggleInterface(ctx, name, up)
		if err != nil {
			ui.Error("Interface change failed", err.Error())
		}
		return actionDoneMsg{err: err}
	}, true
}

// confirmDelete opens a confirmation for the selected VM, ISO or pod.
func (m *Model) confirmDelete() {
	r, ok := m.selectedRow()
	if !ok {
		return
	}
	ui := m.ui
	var run func(ctx context.Context) error
	switch m.current {
	case ViewVMs:
		virt := m.virt
		run = func(ctx context.Context) error {
			return virt.Perform(ctx, virtualization.ActionDelete, r.id)
		}
	case ViewISOs:
		virt := m.virt
		run = func(ctx context.Context) error {
			return notify(ui, "ISO deleted", r.name, virt.DeleteISO(ctx, r.id))
		}
	case ViewPods:
		if m.kube == nil {
			return
		}
		kube := m.kube
		run = func(ctx context.Context) error {
			return notify(ui, "Pod deleted", r.name, kube.Delete(ctx, kubernetes.Pods.Resource, r.namespace, r.name))
		}
	default:
		return
	}
	m.modal = confirmModal{
		title:   fmt.Sprintf("Delete %s?", r.name),
		message: fmt.Sprintf("%s %q will be removed.", m.current.Title(), r.name),
		run:     run,
		ctx:     m.ctx,
	}
}

func notify(ui *uistate.Service, title, name string, err error) error {
	if err != nil {
		ui.Error("Delete failed", err.Error())
		return err
	}
	ui.Success(title, name)
	return nil
}

func (m *Model) switchView(v View) {
	if v == m.current {
		return
	}
	m.current = v
	m.selected = 0
	m.syncSelection()
}

// applyQuery sets the search on every store so switching views keeps it.
func (m *Model) applyQuery(q string) {
	m.query = q
	if m.virt != nil {
		m.virt.SetSearchQuery(q)
	}
	if m.kube != nil {
		m.kube.SetSearch(q)
	}
	if m.net != nil {
		m.net.SetSearchQuery(q)
	}
	m.clampSelection()
}

func (m *Model) clampSelection() {
	count := len(m.tableFor(m.current, m.query).rows)
	if m.selected >= count {
		m.selected = count - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// syncSelection mirrors the VM cursor into the store selection.
func (m *Model) syncSelection() {
	if m.current != ViewVMs || m.virt == nil {
		return
	}
	if r, ok := m.selectedRow(); ok {
		m.virt.SelectVM(r.id)
	}
}

func (m Model) selectedRow() (row, bool) {
	rows := m.tableFor(m.current, m.query).rows
	if m.selected < 0 || m.selected >= len(rows) {
		return row{}, false
	}
	return rows[m.selected], true
}

func (m Model) refreshCmd() tea.Cmd {
	virt, kube, net, ctx := m.virt, m.kube, m.net, m.ctx
	return func() tea.Msg {
		var err error
		if virt != nil {
			err = multierr.Append(err, virt.Refresh(ctx))
		}
		if kube != nil {
			err = multierr.Append(err, kube.Refresh(ctx))
		}
		if net != nil {
			err = multierr.Append(err, net.Refresh(ctx))
		}
		return refreshDoneMsg{err: err}
	}
}

// Messages

type tickMsg time.Time

type actionDoneMsg struct{ err error }

type refreshDoneMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	if opts.Virtualization == nil {
		return fmt.Errorf("ui requires the virtualization service")
	}
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
