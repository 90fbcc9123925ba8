package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/vapor-console/internal/kubernetes"
	"github.com/five82/vapor-console/internal/uistate"
	"github.com/five82/vapor-console/internal/virtualization"
)

func newTestModel(t *testing.T) (Model, *uistate.Service, *virtualization.Service) {
	t.Helper()
	svc := uistate.New(uistate.Options{Scheme: uistate.StaticScheme(true)})
	virt := virtualization.New(virtualization.Options{UI: svc})
	kube := kubernetes.New(kubernetes.Options{})
	t.Cleanup(func() {
		kube.Close()
		virt.Close()
		svc.Close()
	})

	virt.VMs().Replace([]virtualization.VirtualMachine{
		{ID: "vm-1", Name: "alpha", State: virtualization.StateRunning, Memory: 2048, VCPUs: 2},
		{ID: "vm-2", Name: "beta", State: virtualization.StateStopped, Memory: 1024, VCPUs: 1},
		{ID: "vm-3", Name: "gamma", State: virtualization.StatePaused, Memory: 4096, VCPUs: 4},
	})
	virt.ISOs().Replace([]virtualization.ISOImage{{ID: "iso-1", Name: "debian.iso", Size: 1 << 30}})

	m := New(Options{UI: svc, Virtualization: virt, Kubernetes: kube})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	return next.(Model), svc, virt
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestView_RendersVMs(t *testing.T) {
	m, _, _ := newTestModel(t)
	out := m.View()
	for _, want := range []string{"VAPOR", "alpha", "beta", "gamma", "1 running"} {
		if !strings.Contains(out, want) {
			t.Fatalf("View() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "alpha") > strings.Index(out, "gamma") {
		t.Fatalf("VMs out of order:\n%s", out)
	}
}

func TestNavigation_SelectsVM(t *testing.T) {
	m, _, virt := newTestModel(t)
	m = press(t, m, "j")
	if got := virt.SelectedVMID().Get(); got != "vm-2" {
		t.Fatalf("SelectedVMID = %q, want vm-2", got)
	}
	m = press(t, m, "G")
	if got := virt.SelectedVMID().Get(); got != "vm-3" {
		t.Fatalf("SelectedVMID = %q, want vm-3", got)
	}
	m = press(t, m, "j")
	if m.selected != 2 {
		t.Fatalf("selected = %d, want 2 (clamped)", m.selected)
	}
}

func TestSearch_FiltersVMs(t *testing.T) {
	m, _, virt := newTestModel(t)
	m = press(t, m, "/", "b", "e", "enter")
	if got := virt.SearchQuery().Get(); got != "be" {
		t.Fatalf("SearchQuery = %q, want be", got)
	}
	out := m.View()
	if !strings.Contains(out, "beta") || strings.Contains(out, "alpha") {
		t.Fatalf("View() after search:\n%s", out)
	}

	m = press(t, m, "esc")
	if got := virt.SearchQuery().Get(); got != "" {
		t.Fatalf("SearchQuery after esc = %q, want empty", got)
	}
}

func TestSwitchView(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "3")
	if m.current != ViewISOs {
		t.Fatalf("current = %v, want isos", m.current)
	}
	if out := m.View(); !strings.Contains(out, "debian.iso") {
		t.Fatalf("ISO view missing image:\n%s", out)
	}
	m = press(t, m, "tab", "tab")
	if m.current != ViewPods {
		t.Fatalf("current = %v, want pods", m.current)
	}
	if out := m.View(); !strings.Contains(out, "No pods") {
		t.Fatalf("empty pods view:\n%s", out)
	}
	m = press(t, m, "tab")
	if m.current != ViewInterfaces {
		t.Fatalf("current = %v, want interfaces", m.current)
	}
	m = press(t, m, "tab")
	if m.current != ViewVMs {
		t.Fatalf("current = %v, want vms after wrap", m.current)
	}
}

func TestDelete_ConfirmModalCancel(t *testing.T) {
	m, _, virt := newTestModel(t)
	m = press(t, m, "d")
	if m.modal == nil {
		t.Fatalf("modal = nil, want confirm dialog")
	}
	if out := m.View(); !strings.Contains(out, "Delete alpha?") {
		t.Fatalf("modal view:\n%s", out)
	}
	m = press(t, m, "n")
	if m.modal != nil {
		t.Fatalf("modal still open after cancel")
	}
	if !virt.VMs().Exists("vm-1") {
		t.Fatalf("vm-1 removed after cancel")
	}
}

func TestDelete_NotOfferedForPools(t *testing.T) {
	m, _, virt := newTestModel(t)
	virt.Pools().Replace([]virtualization.StoragePool{{Name: "default", State: "active", Capacity: 100, Allocation: 25}})
	m = press(t, m, "2", "d")
	if m.modal != nil {
		t.Fatalf("modal opened for a pool")
	}
	if out := m.View(); !strings.Contains(out, "25%") {
		t.Fatalf("pool usage missing:\n%s", out)
	}
}

func TestToggleTheme(t *testing.T) {
	m, svc, _ := newTestModel(t)
	if m.theme().Name != "Nightfox" {
		t.Fatalf("initial theme = %q, want Nightfox", m.theme().Name)
	}
	m = press(t, m, "T")
	if got := svc.EffectiveTheme().Get(); got != uistate.ThemeLight {
		t.Fatalf("EffectiveTheme = %q, want light", got)
	}
	if m.theme().Name != "Dayfox" {
		t.Fatalf("theme = %q, want Dayfox", m.theme().Name)
	}
}

func TestNotifications_RenderAndDismiss(t *testing.T) {
	m, svc, _ := newTestModel(t)
	svc.Error("Start failed", "backend unavailable")
	if out := m.View(); !strings.Contains(out, "Start failed") {
		t.Fatalf("notification missing:\n%s", out)
	}
	m = press(t, m, "x")
	if n := len(svc.Notifications().Get()); n != 0 {
		t.Fatalf("notifications = %d after dismiss, want 0", n)
	}
}

func TestHelpOverlay(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "?")
	if !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatalf("help overlay not shown")
	}
	m = press(t, m, "j")
	if m.showHelp {
		t.Fatalf("help still shown after key press")
	}
}

func TestParseView(t *testing.T) {
	for i, name := range viewNames {
		v, ok := ParseView(strings.ToUpper(name))
		if !ok || v != View(i) {
			t.Fatalf("ParseView(%q) = %v, %v", name, v, ok)
		}
	}
	if _, ok := ParseView("volumes"); ok {
		t.Fatalf("ParseView(volumes) ok = true, want false")
	}
}
