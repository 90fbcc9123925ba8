package ui

import (
	"testing"

	"github.com/five82/vapor-console/internal/uistate"
)

func TestThemeFor(t *testing.T) {
	if got := ThemeFor(uistate.ThemeLight).Name; got != "Dayfox" {
		t.Fatalf("ThemeFor(light).Name = %q, want Dayfox", got)
	}
	if got := ThemeFor(uistate.ThemeDark).Name; got != "Nightfox" {
		t.Fatalf("ThemeFor(dark).Name = %q, want Nightfox", got)
	}
	if got := ThemeFor(uistate.ThemeAuto).Name; got != "Nightfox" {
		t.Fatalf("ThemeFor(auto).Name = %q, want Nightfox", got)
	}
}

func TestSeverityColor(t *testing.T) {
	th := nightfoxTheme()
	cases := map[uistate.Severity]string{
		uistate.SeveritySuccess: th.Success,
		uistate.SeverityWarning: th.Warning,
		uistate.SeverityError:   th.Danger,
		uistate.SeverityInfo:    th.Info,
		"":                      th.Info,
	}
	for sev, want := range cases {
		if got := th.SeverityColor(sev); got != want {
			t.Fatalf("SeverityColor(%q) = %q, want %q", sev, got, want)
		}
	}
}

func TestThemesCoverSameStates(t *testing.T) {
	dark, light := nightfoxTheme(), dayfoxTheme()
	for state := range dark.StateColors {
		if _, ok := light.StateColors[state]; !ok {
			t.Fatalf("light theme missing state color %q", state)
		}
	}
	if len(dark.StateColors) != len(light.StateColors) {
		t.Fatalf("state color counts differ: dark=%d light=%d", len(dark.StateColors), len(light.StateColors))
	}
}

func TestTermScheme_RecheckNotifiesOnChange(t *testing.T) {
	dark := true
	s := newTermScheme(func() bool { return dark })
	if !s.Dark() {
		t.Fatalf("Dark() = false, want true")
	}

	var got []bool
	stop := s.Watch(func(d bool) { got = append(got, d) })

	s.Recheck()
	if len(got) != 0 {
		t.Fatalf("Recheck without change notified %v", got)
	}

	dark = false
	s.Recheck()
	if len(got) != 1 || got[0] {
		t.Fatalf("notifications = %v, want [false]", got)
	}

	stop()
	if s.Watchers() != 0 {
		t.Fatalf("Watchers() = %d after stop, want 0", s.Watchers())
	}
	dark = true
	s.Recheck()
	if len(got) != 1 {
		t.Fatalf("stopped watcher still notified: %v", got)
	}
}

func TestTermScheme_DrivesAutoTheme(t *testing.T) {
	dark := true
	scheme := newTermScheme(func() bool { return dark })
	svc := uistate.New(uistate.Options{Scheme: scheme})
	defer svc.Close()

	auto := uistate.ThemeAuto
	svc.UpdatePreferences(uistate.PreferencesPatch{Theme: &auto})
	if got := svc.EffectiveTheme().Get(); got != uistate.ThemeDark {
		t.Fatalf("EffectiveTheme = %q, want dark", got)
	}
	if scheme.Watchers() != 1 {
		t.Fatalf("Watchers() = %d, want 1", scheme.Watchers())
	}

	dark = false
	scheme.Recheck()
	if got := svc.EffectiveTheme().Get(); got != uistate.ThemeLight {
		t.Fatalf("EffectiveTheme after recheck = %q, want light", got)
	}

	svc.UpdatePreferences(uistate.PreferencesPatch{Theme: &auto})
	if scheme.Watchers() != 1 {
		t.Fatalf("Watchers() after re-selecting auto = %d, want 1", scheme.Watchers())
	}
}
