package uistate

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/bus"
	"github.com/five82/vapor-console/internal/prefs"
	"github.com/five82/vapor-console/internal/state"
	"github.com/five82/vapor-console/internal/timers"
)

// Options configure a Service.
type Options struct {
	Prefs  *prefs.Store
	Bus    *bus.Bus
	Scheme ColorScheme
	Now    func() time.Time
}

// Service owns process-wide UI state: persisted preferences plus transient
// notifications, drawer, modal, loading indicators, breadcrumbs and the
// context menu.
type Service struct {
	bus *bus.Bus
	now func() time.Time

	prefs       preferenceAtoms
	preferences *state.Computed[Preferences]
	fontPixels  *state.Computed[int]

	themeMu    sync.Mutex
	scheme     ColorScheme
	stopScheme func()
	effective  *state.Atom[Theme]

	notifications *state.Atom[[]Notification]
	timers        timers.Registry

	drawer      *state.Atom[*DrawerState]
	modal       *state.Atom[*ModalState]
	breadcrumbs *state.Atom[[]Breadcrumb]
	contextMenu *state.Atom[*ContextMenu]

	loading      *state.Atom[map[string]LoadingEntry]
	isLoading    *state.Computed[bool]
	loadingCount *state.Computed[int]

	unsubs []func()
}

// New builds the UI service and starts resetting transient state on
// auth:logout.
func New(opts Options) *Service {
	store := opts.Prefs
	if store == nil {
		store = prefs.Memory()
	}
	b := opts.Bus
	if b == nil {
		b = bus.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		bus:           b,
		now:           now,
		prefs:         openPreferences(store),
		scheme:        opts.Scheme,
		effective:     state.NewAtom(ThemeDark),
		notifications: state.NewAtom[[]Notification](nil),
		drawer:        state.NewAtom[*DrawerState](nil),
		modal:         state.NewAtom[*ModalState](nil),
		breadcrumbs:   state.NewAtom[[]Breadcrumb](nil),
		contextMenu:   state.NewAtom[*ContextMenu](nil),
		loading:       state.NewAtom(map[string]LoadingEntry{}),
	}
	s.preferences = state.DeriveFunc(s.prefs.snapshot, s.prefs.sources()...)
	s.fontPixels = state.Derive(s.prefs.fontSize, FontSize.Pixels)
	s.isLoading = state.Derive(s.loading, func(m map[string]LoadingEntry) bool { return len(m) > 0 })
	s.loadingCount = state.Derive(s.loading, func(m map[string]LoadingEntry) int { return len(m) })

	s.applyTheme(s.prefs.theme.Get())
	s.unsubs = append(s.unsubs,
		s.prefs.theme.Subscribe(s.applyTheme),
		b.Subscribe(bus.AuthLogout, func(any) { s.Reset() }),
	)
	return s
}

// Reset clears transient state and cancels every timer. Preferences are kept.
func (s *Service) Reset() {
	s.ClearNotifications()
	s.CloseDrawer()
	s.CloseModal()
	s.StopAllLoading()
	s.HideContextMenu()
	s.SetBreadcrumbs(nil)
	klog.InfoS("UI state reset, preferences preserved")
}

// Close detaches the service from the bus, the colour scheme and its
// preference atoms, and cancels all timers.
func (s *Service) Close() {
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil

	s.themeMu.Lock()
	if s.stopScheme != nil {
		s.stopScheme()
		s.stopScheme = nil
	}
	s.themeMu.Unlock()

	s.timers.CancelAll()
	s.preferences.Close()
	s.fontPixels.Close()
	s.isLoading.Close()
	s.loadingCount.Close()
}
