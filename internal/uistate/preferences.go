package uistate

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/bus"
	"github.com/five82/vapor-console/internal/prefs"
	"github.com/five82/vapor-console/internal/state"
)

// Preference keys.
const (
	KeyTheme             = "vapor:ui:theme"
	KeyLanguage          = "vapor:ui:language"
	KeySidebarCollapsed  = "vapor:ui:sidebarCollapsed"
	KeyNotificationSound = "vapor:ui:notificationSound"
	KeyCompactMode       = "vapor:ui:compactMode"
	KeyShowLineNumbers   = "vapor:ui:showLineNumbers"
	KeyFontSize          = "vapor:ui:fontSize"
)

func oneOf[T ~string](allowed ...T) func(string) (T, error) {
	return func(raw string) (T, error) {
		for _, v := range allowed {
			if string(v) == raw {
				return v, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("unknown value %q", raw)
	}
}

func encode[T ~string](v T) string { return string(v) }

type preferenceAtoms struct {
	theme             *state.Atom[Theme]
	language          *state.Atom[Language]
	sidebarCollapsed  *state.Atom[bool]
	notificationSound *state.Atom[bool]
	compactMode       *state.Atom[bool]
	showLineNumbers   *state.Atom[bool]
	fontSize          *state.Atom[FontSize]
}

func openPreferences(s *prefs.Store) preferenceAtoms {
	return preferenceAtoms{
		theme:             prefs.Persistent(s, KeyTheme, ThemeDark, encode[Theme], oneOf(ThemeDark, ThemeLight, ThemeAuto)),
		language:          prefs.Persistent(s, KeyLanguage, LanguageEN, encode[Language], oneOf(LanguageEN, LanguageID)),
		sidebarCollapsed:  prefs.Bool(s, KeySidebarCollapsed, false),
		notificationSound: prefs.Bool(s, KeyNotificationSound, true),
		compactMode:       prefs.Bool(s, KeyCompactMode, false),
		showLineNumbers:   prefs.Bool(s, KeyShowLineNumbers, true),
		fontSize:          prefs.Persistent(s, KeyFontSize, FontMedium, encode[FontSize], oneOf(FontSmall, FontMedium, FontLarge)),
	}
}

func (p preferenceAtoms) snapshot() Preferences {
	return Preferences{
		Theme:             p.theme.Get(),
		Language:          p.language.Get(),
		SidebarCollapsed:  p.sidebarCollapsed.Get(),
		NotificationSound: p.notificationSound.Get(),
		CompactMode:       p.compactMode.Get(),
		ShowLineNumbers:   p.showLineNumbers.Get(),
		FontSize:          p.fontSize.Get(),
	}
}

func (p preferenceAtoms) sources() []state.Source {
	return []state.Source{
		state.On[Theme](p.theme),
		state.On[Language](p.language),
		state.On[bool](p.sidebarCollapsed),
		state.On[bool](p.notificationSound),
		state.On[bool](p.compactMode),
		state.On[bool](p.showLineNumbers),
		state.On[FontSize](p.fontSize),
	}
}

// Preferences is the combined preference view.
func (s *Service) Preferences() state.Readable[Preferences] { return s.preferences }

// Theme is the theme preference, which may be auto.
func (s *Service) Theme() state.Readable[Theme] { return s.prefs.theme }

// EffectiveTheme is dark or light, resolving auto against the colour scheme.
func (s *Service) EffectiveTheme() state.Readable[Theme] { return s.effective }

// Language is the language preference.
func (s *Service) Language() state.Readable[Language] { return s.prefs.language }

// SidebarCollapsed is the sidebar preference.
func (s *Service) SidebarCollapsed() state.Readable[bool] { return s.prefs.sidebarCollapsed }

// FontPixels is the base font size in pixels.
func (s *Service) FontPixels() state.Readable[int] { return s.fontPixels }

// UpdatePreferences sets every field present in patch.
func (s *Service) UpdatePreferences(patch PreferencesPatch) {
	if patch.Theme != nil {
		s.prefs.theme.Set(*patch.Theme)
	}
	if patch.Language != nil {
		s.SetLanguage(*patch.Language)
	}
	if patch.SidebarCollapsed != nil {
		s.prefs.sidebarCollapsed.Set(*patch.SidebarCollapsed)
	}
	if patch.NotificationSound != nil {
		s.prefs.notificationSound.Set(*patch.NotificationSound)
	}
	if patch.CompactMode != nil {
		s.prefs.compactMode.Set(*patch.CompactMode)
	}
	if patch.ShowLineNumbers != nil {
		s.prefs.showLineNumbers.Set(*patch.ShowLineNumbers)
	}
	if patch.FontSize != nil {
		s.prefs.fontSize.Set(*patch.FontSize)
	}
}

// ToggleTheme switches dark to light and anything else to dark.
func (s *Service) ToggleTheme() Theme {
	return s.prefs.theme.Update(func(cur Theme) Theme {
		if cur == ThemeDark {
			return ThemeLight
		}
		return ThemeDark
	})
}

// ToggleSidebar flips the sidebar preference.
func (s *Service) ToggleSidebar() bool {
	return s.prefs.sidebarCollapsed.Update(func(cur bool) bool { return !cur })
}

// SetLanguage stores lang and publishes language:change.
func (s *Service) SetLanguage(lang Language) {
	s.prefs.language.Set(lang)
	s.bus.Publish(bus.LanguageChange, lang)
}

// applyTheme resolves the effective theme for t. Entering auto subscribes to
// the colour scheme; leaving it drops the subscription.
func (s *Service) applyTheme(t Theme) {
	s.themeMu.Lock()
	if t != ThemeAuto || s.scheme == nil {
		if s.stopScheme != nil {
			s.stopScheme()
			s.stopScheme = nil
			klog.V(2).InfoS("Stopped following colour scheme")
		}
		s.themeMu.Unlock()
		if t == ThemeAuto {
			t = ThemeDark
		}
		s.effective.Set(t)
		return
	}
	if s.stopScheme == nil {
		s.stopScheme = s.scheme.Watch(func(dark bool) {
			if s.prefs.theme.Get() == ThemeAuto {
				s.effective.Set(schemeTheme(dark))
			}
		})
		klog.V(2).InfoS("Following colour scheme")
	}
	dark := s.scheme.Dark()
	s.themeMu.Unlock()
	s.effective.Set(schemeTheme(dark))
}

func schemeTheme(dark bool) Theme {
	if dark {
		return ThemeDark
	}
	return ThemeLight
}

// ColorScheme reports the terminal or OS colour scheme for the auto theme.
type ColorScheme interface {
	Dark() bool
	// Watch calls fn on every scheme change until stop is called.
	Watch(fn func(dark bool)) (stop func())
}

// StaticScheme is a ColorScheme that never changes.
type StaticScheme bool

// Dark implements ColorScheme.
func (s StaticScheme) Dark() bool { return bool(s) }

// Watch implements ColorScheme.
func (StaticScheme) Watch(func(bool)) func() { return func() {} }
