package uistate

import "time"

// Theme is the colour scheme preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
	ThemeAuto  Theme = "auto"
)

// Language is the interface language.
type Language string

const (
	LanguageEN Language = "en"
	LanguageID Language = "id"
)

// FontSize is the base text size.
type FontSize string

const (
	FontSmall  FontSize = "small"
	FontMedium FontSize = "medium"
	FontLarge  FontSize = "large"
)

// Pixels returns the base font size in pixels.
func (f FontSize) Pixels() int {
	switch f {
	case FontSmall:
		return 14
	case FontLarge:
		return 18
	default:
		return 16
	}
}

// Preferences is the combined view of every persisted preference.
type Preferences struct {
	Theme             Theme
	Language          Language
	SidebarCollapsed  bool
	NotificationSound bool
	CompactMode       bool
	ShowLineNumbers   bool
	FontSize          FontSize
}

// PreferencesPatch sets every non-nil field.
type PreferencesPatch struct {
	Theme             *Theme
	Language          *Language
	SidebarCollapsed  *bool
	NotificationSound *bool
	CompactMode       *bool
	ShowLineNumbers   *bool
	FontSize          *FontSize
}

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification durations.
const (
	DefaultDuration = 5 * time.Second
	DurationSticky  = time.Duration(0)
)

// Action is a button attached to a notification.
type Action struct {
	Label   string
	Handler func()
}

// Notification is a toast. A zero Duration never auto-dismisses.
type Notification struct {
	ID          string
	Title       string
	Message     string
	Severity    Severity
	Timestamp   time.Time
	Duration    time.Duration
	Dismissible bool
	Action      *Action
}

// ToastOptions describe a notification to show. Nil Duration means
// DefaultDuration; nil Dismissible means true.
type ToastOptions struct {
	Title       string
	Message     string
	Severity    Severity
	Duration    *time.Duration
	Dismissible *bool
	Action      *Action
}

// DrawerState is the single open drawer.
type DrawerState struct {
	ID         string
	Type       string // create, edit, detail or custom
	Title      string
	Data       any
	Width      string
	Persistent bool
}

// ModalState is the single open modal.
type ModalState struct {
	ID    string
	Type  string
	Title string
	Data  any
	Size  string
}

// LoadingEntry is one keyed global loading indicator.
type LoadingEntry struct {
	Key      string
	Message  string
	Progress *float64
}

// Breadcrumb is one navigation crumb.
type Breadcrumb struct {
	Label string
	Path  string
}

// MenuItem is one context menu entry.
type MenuItem struct {
	Label    string
	Icon     string
	Handler  func()
	Disabled bool
}

// ContextMenu is the open context menu.
type ContextMenu struct {
	X, Y  int
	Items []MenuItem
}
